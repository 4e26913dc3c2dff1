package panel

import (
	"time"

	"github.com/davidMbrooke/texecom-connect/protocol"
)

// DefaultSmoothedActiveDelay is how long a zone's smoothed state holds after
// the detector last reported activity.
const DefaultSmoothedActiveDelay = 30 * time.Second

// TransitionKind distinguishes the two observable zone state changes.
type TransitionKind int

const (
	ActiveChanged TransitionKind = iota
	SmoothedActiveChanged
)

func (k TransitionKind) String() string {
	switch k {
	case ActiveChanged:
		return "active"
	case SmoothedActiveChanged:
		return "smoothed active"
	default:
		return "unknown"
	}
}

// Transition records a single state flip on a zone. Apply and Tick return
// transitions instead of running callbacks so the dispatcher controls
// fan-out and no handler re-enters the model.
type Transition struct {
	Zone *Zone
	Kind TransitionKind
	From bool
	To   bool
}

// Zone is one detector input: static attributes loaded from the panel's
// site data plus live state driven by zone events.
//
// The smoothed state follows the physical state but holds for a delay after
// activity ceases, suppressing flicker from detectors that pulse.
type Zone struct {
	Number     int
	Type       protocol.ZoneType
	AreaBitmap uint64
	Text       string

	HoldDelay time.Duration

	active              bool
	activeSince         time.Time
	lastActive          time.Time
	smoothedActive      bool
	smoothedActiveSince time.Time
	smoothedLastActive  time.Time
}

func newZone(number int, hold time.Duration) *Zone {
	if hold <= 0 {
		hold = DefaultSmoothedActiveDelay
	}
	return &Zone{Number: number, HoldDelay: hold}
}

func (z *Zone) Active() bool         { return z.active }
func (z *Zone) SmoothedActive() bool { return z.smoothedActive }

// ActiveSince returns when the zone went active; zero while inactive.
func (z *Zone) ActiveSince() time.Time { return z.activeSince }

// LastActive returns when the zone last dropped from active.
func (z *Zone) LastActive() time.Time { return z.lastActive }

// Apply moves the physical active state and returns the transitions that
// fired, at most one per state. Activation always raises the smoothed state
// immediately.
func (z *Zone) Apply(active bool, now time.Time) []Transition {
	if active == z.active {
		return nil
	}
	transitions := []Transition{{Zone: z, Kind: ActiveChanged, From: z.active, To: active}}
	z.active = active
	if active {
		z.activeSince = now
		if !z.smoothedActive {
			z.smoothedActive = true
			z.smoothedActiveSince = now
			transitions = append(transitions, Transition{Zone: z, Kind: SmoothedActiveChanged, From: false, To: true})
		}
	} else {
		z.activeSince = time.Time{}
		z.lastActive = now
	}
	return transitions
}

// Tick expires the smoothed state once the zone has been inactive for the
// hold delay.
func (z *Zone) Tick(now time.Time) []Transition {
	if !z.smoothedActive || z.active {
		return nil
	}
	if now.Sub(z.lastActive) <= z.HoldDelay {
		return nil
	}
	z.smoothedActive = false
	z.smoothedActiveSince = time.Time{}
	z.smoothedLastActive = now
	return []Transition{{Zone: z, Kind: SmoothedActiveChanged, From: true, To: false}}
}

// ZoneSnapshot is an immutable copy of zone state for readers outside the
// receive loop.
type ZoneSnapshot struct {
	Number         int        `json:"number"`
	Type           string     `json:"type"`
	Text           string     `json:"text"`
	AreaBitmap     uint64     `json:"areaBitmap"`
	Active         bool       `json:"active"`
	SmoothedActive bool       `json:"smoothedActive"`
	ActiveSince    *time.Time `json:"activeSince,omitempty"`
	LastActive     *time.Time `json:"lastActive,omitempty"`
}

func (z *Zone) Snapshot() ZoneSnapshot {
	s := ZoneSnapshot{
		Number:         z.Number,
		Type:           z.Type.String(),
		Text:           z.Text,
		AreaBitmap:     z.AreaBitmap,
		Active:         z.active,
		SmoothedActive: z.smoothedActive,
	}
	if !z.activeSince.IsZero() {
		t := z.activeSince
		s.ActiveSince = &t
	}
	if !z.lastActive.IsZero() {
		t := z.lastActive
		s.LastActive = &t
	}
	return s
}
