package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/davidMbrooke/texecom-connect/panel"
	"github.com/davidMbrooke/texecom-connect/protocol"
)

// Hooks receives connection outage notifications. Each fires at most once
// per outage.
type Hooks interface {
	ConnectionLost()
	ConnectionRegained()
}

// Update is the fan-out payload delivered to subscribers: the rendered
// description, the decoded event when one triggered the update, and a zone
// snapshot when the update concerns a zone.
type Update struct {
	Time       time.Time           `json:"time"`
	Text       string              `json:"text"`
	Event      protocol.Event      `json:"-"`
	Zone       *panel.ZoneSnapshot `json:"zone,omitempty"`
	Transition string              `json:"transition,omitempty"`
}

// Monitor is the lifecycle controller: it owns the panel model, drives
// connect → login → enroll → site data → receive loop, reconnects after
// drops, and fans decoded events and zone transitions out to subscribers.
type Monitor struct {
	cfg   Config
	hooks Hooks

	// zoneLoaded runs for each used zone during the site-data zone
	// enumeration: at startup, and again from the receive loop when a
	// site-data reload re-reads the zones.
	zoneLoaded func(panel.ZoneSnapshot)

	mu            sync.RWMutex
	panel         *panel.Panel
	connected     bool
	siteDataStale bool

	subMu       sync.RWMutex
	subscribers []chan Update
}

func NewMonitor(cfg Config, hooks Hooks) *Monitor {
	cfg = cfg.withDefaults()
	return &Monitor{
		cfg:   cfg,
		hooks: hooks,
		panel: panel.New(cfg.SmoothedActiveDelay),
	}
}

// OnZoneLoaded registers a callback invoked for each used zone read during
// the site-data enumeration, at startup and on every site-data reload.
func (m *Monitor) OnZoneLoaded(fn func(panel.ZoneSnapshot)) {
	m.zoneLoaded = fn
}

// Subscribe returns a channel receiving every update. Slow consumers drop
// updates rather than stall the receive loop.
func (m *Monitor) Subscribe() chan Update {
	ch := make(chan Update, 64)
	m.subMu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.subMu.Unlock()
	return ch
}

func (m *Monitor) Unsubscribe(ch chan Update) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

func (m *Monitor) broadcast(u Update) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- u:
		default:
		}
	}
}

// Connected reports whether a panel session is established.
func (m *Monitor) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Info returns the panel identification and connection state.
func (m *Monitor) Info() (panel.Info, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.panel.Info, m.connected
}

// Zones returns snapshots of every known zone.
func (m *Monitor) Zones() []panel.ZoneSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.panel.Zones()
}

// Areas returns snapshots of every known area.
func (m *Monitor) Areas() []panel.AreaSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.panel.Areas()
}

// Users returns snapshots of every known user: the valid slots read from the
// panel plus the synthesized engineer slot 0.
func (m *Monitor) Users() []panel.UserSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.panel.Users()
}

// Run connects to the panel and keeps the session alive until ctx is
// cancelled, re-establishing it after every drop.
func (m *Monitor) Run(ctx context.Context) error {
	lastConnectedAt := time.Now()
	notifiedLoss := false

	for {
		if ctx.Err() != nil {
			return nil
		}
		if !notifiedLoss && time.Since(lastConnectedAt) >= m.cfg.OutageThreshold {
			log.Warnf("Connection lost for over %v", m.cfg.OutageThreshold)
			if m.hooks != nil {
				m.hooks.ConnectionLost()
			}
			notifiedLoss = true
		}

		sess := New(m.cfg, m.apply)
		if err := sess.Connect(); err != nil {
			log.Errorf("Connect failed - %v; sleeping for %v", err, m.cfg.ReconnectDelay)
			if !sleepCtx(ctx, m.cfg.ReconnectDelay) {
				return nil
			}
			continue
		}
		if err := sess.Login(); err != nil {
			log.Errorf("Login failed - udl password incorrect, pre-v4 panel, or connected too soon: %v", err)
			sess.Close()
			if !sleepCtx(ctx, m.cfg.ReconnectDelay) {
				return nil
			}
			continue
		}
		log.Info("Login successful")
		if err := sess.EnableEvents(); err != nil {
			log.Errorf("Set event messages failed, closing socket: %v", err)
			sess.Close()
			continue
		}
		if notifiedLoss {
			log.Info("Connection regained")
			if m.hooks != nil {
				m.hooks.ConnectionRegained()
			}
		}
		notifiedLoss = false

		m.setConnected(true)
		if err := m.loadSiteData(sess); err != nil {
			log.Errorf("Loading site data failed, closing socket: %v", err)
			sess.Close()
			m.setConnected(false)
			lastConnectedAt = time.Now()
			continue
		}
		log.Info("Got all areas/zones/users; waiting for events")

		sess.BeginRunning()
		m.receiveLoop(ctx, sess)
		sess.Close()
		m.setConnected(false)
		lastConnectedAt = time.Now()
		log.Warn("Connection lost")
	}
}

func (m *Monitor) setConnected(connected bool) {
	m.mu.Lock()
	m.connected = connected
	m.mu.Unlock()
}

// loadSiteData reads the identification string and then enumerates areas,
// zones and users at the sizes it dictates. Informational reads are best
// effort; a transport failure aborts so the lifecycle can reconnect.
func (m *Monitor) loadSiteData(sess *Session) error {
	id, err := sess.GetPanelIdentification()
	if err != nil {
		return err
	}
	info := panel.Info{
		PanelType:     id.PanelType,
		Firmware:      id.Firmware,
		NumberOfZones: id.NumberOfZones,
	}
	if !info.Valid() {
		return fmt.Errorf("panel reports unsupported zone count %d", info.NumberOfZones)
	}
	m.mu.Lock()
	m.panel.Info = info
	m.mu.Unlock()

	// Informational reads; each logs its own result.
	if _, err := sess.GetDateTime(); failedTransport(err) {
		return err
	}
	if _, err := sess.GetLCDDisplay(); failedTransport(err) {
		return err
	}
	if _, err := sess.GetSystemPower(); failedTransport(err) {
		return err
	}
	if _, err := sess.GetLogPointer(); failedTransport(err) {
		return err
	}

	areas, err := info.Areas()
	if err != nil {
		return err
	}
	for n := 1; n < areas; n++ {
		details, err := sess.GetAreaDetails(n)
		if err != nil {
			if failedTransport(err) {
				return err
			}
			log.Warnf("GET_AREA_DETAILS area %d: %v", n, err)
			continue
		}
		m.mu.Lock()
		a := m.panel.Area(n)
		a.Name = details.Name
		a.ExitDelay = details.ExitDelay
		a.Entry1Delay = details.Entry1Delay
		a.Entry2Delay = details.Entry2Delay
		a.SecondEntry = details.SecondEntry
		m.mu.Unlock()
		log.Infof("area %d text '%s' exitDelay %d entry1 %d entry2 %d secondEntry %d",
			n, details.Name, details.ExitDelay, details.Entry1Delay, details.Entry2Delay, details.SecondEntry)
	}

	for n := 1; n <= info.NumberOfZones; n++ {
		details, err := sess.GetZoneDetails(n)
		if err != nil {
			if failedTransport(err) {
				return err
			}
			log.Warnf("GET_ZONE_DETAILS zone %d: %v", n, err)
			continue
		}
		m.mu.Lock()
		z := m.panel.Zone(n)
		z.Type = details.ZoneType
		z.AreaBitmap = details.AreaBitmap
		z.Text = details.Text
		snap := z.Snapshot()
		m.mu.Unlock()
		if details.ZoneType != protocol.ZoneTypeUnused {
			log.Infof("zone %d type %s name '%s'", n, details.ZoneType, details.Text)
			if m.zoneLoaded != nil {
				m.zoneLoaded(snap)
			}
		}
	}

	users, err := info.Users()
	if err != nil {
		return err
	}
	for n := 1; n < users; n++ {
		details, err := sess.GetUser(n)
		if err != nil {
			if failedTransport(err) {
				return err
			}
			// Some panels return user records at other lengths; undecoded
			// until a sample is available.
			log.Warnf("GET_USER user %d: %v", n, err)
			continue
		}
		if !details.Valid() {
			continue
		}
		m.mu.Lock()
		u := m.panel.User(n)
		u.Name = details.Name
		u.Passcode = details.Passcode
		u.Tag = details.Tag
		u.Areas = details.Areas
		u.Modifiers = details.Modifiers
		u.Locks = details.Locks
		u.Doors = details.Doors
		u.Config = details.Config
		m.mu.Unlock()
		log.Infof("user %d name '%s'", n, details.Name)
	}
	m.mu.Lock()
	m.panel.User(0).Name = "Engineer"
	m.mu.Unlock()
	return nil
}

// failedTransport reports whether a command error means the connection is
// unusable, as opposed to a malformed-but-survivable payload.
func failedTransport(err error) bool {
	return err != nil && !errors.Is(err, protocol.ErrBadPayload)
}

// receiveLoop blocks on the framer, applying events to the model, driving
// the zone smoothing timers and the idle keepalive, and reloading site data
// when the panel reports it changed. Returns when the session dies or ctx
// is cancelled.
func (m *Monitor) receiveLoop(ctx context.Context, sess *Session) {
	for {
		if ctx.Err() != nil {
			return
		}

		m.mu.Lock()
		transitions := m.panel.Tick(time.Now())
		m.mu.Unlock()
		m.fanOutTransitions(transitions)

		if m.takeSiteDataStale() {
			log.Info("Site data changed; re-reading areas/zones/users")
			if err := m.loadSiteData(sess); err != nil {
				log.Errorf("Re-reading site data failed: %v", err)
				return
			}
		}

		if sess.IdleDue() {
			if err := sess.SendIdleCommand(); err != nil {
				log.Errorf("Idle command failed; closing socket: %v", err)
				return
			}
		}

		ev, err := sess.NextEvent()
		if err != nil {
			log.Warnf("Receive failed: %v", err)
			return
		}
		if ev != nil {
			m.apply(ev)
		}
	}
}

func (m *Monitor) takeSiteDataStale() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	stale := m.siteDataStale
	m.siteDataStale = false
	return stale
}

// apply folds one decoded event into the model and broadcasts it. Runs on
// the receive path only, both from the running loop and for messages
// interleaved with command responses.
func (m *Monitor) apply(ev protocol.Event) {
	now := time.Now()
	update := Update{Time: now, Event: ev}
	var transitions []panel.Transition

	m.mu.Lock()
	switch e := ev.(type) {
	case protocol.ZoneEvent:
		z := m.panel.Zone(e.Zone)
		transitions = z.Apply(e.State.Status() == protocol.ZoneActive, now)
		snap := z.Snapshot()
		update.Zone = &snap
		text := z.Text
		if text == "" {
			text = "unknown zone"
		}
		update.Text = fmt.Sprintf("Zone event message: zone %d '%s' %s", e.Zone, text, e.State)

	case protocol.AreaEvent:
		a := m.panel.Area(e.Area)
		a.State = e.State
		name := a.Name
		if name == "" {
			name = "unknown"
		}
		update.Text = fmt.Sprintf("Area event message: area %d %s %s", e.Area, name, e.State)

	case protocol.UserEvent:
		name := "unknown"
		if u, ok := m.panel.LookupUser(e.User); ok {
			name = u.Name
		}
		update.Text = fmt.Sprintf("User event message: logon by user '%s' %d %s", name, e.User, e.Method)

	case protocol.LogEvent:
		if e.EventType == protocol.LogEventSiteDataChanged {
			m.siteDataStale = true
		}
		update.Text = e.String()

	default:
		update.Text = ev.String()
	}
	m.mu.Unlock()

	log.Info(update.Text)
	m.broadcast(update)
	m.fanOutTransitions(transitions)
}

func (m *Monitor) fanOutTransitions(transitions []panel.Transition) {
	for _, t := range transitions {
		m.mu.RLock()
		snap := t.Zone.Snapshot()
		m.mu.RUnlock()
		u := Update{
			Time:       time.Now(),
			Text:       fmt.Sprintf("Zone %d '%s' %s: %t -> %t", snap.Number, snap.Text, t.Kind, t.From, t.To),
			Zone:       &snap,
			Transition: t.Kind.String(),
		}
		m.broadcast(u)
	}
}

// sleepCtx sleeps for d unless ctx is cancelled first; it reports whether
// the full sleep elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
