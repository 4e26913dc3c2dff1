package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/davidMbrooke/texecom-connect/config"
	"github.com/davidMbrooke/texecom-connect/panel"
	"github.com/davidMbrooke/texecom-connect/protocol"
	"github.com/davidMbrooke/texecom-connect/session"
)

// Publisher mirrors zone state to an MQTT broker using Home Assistant's
// discovery convention: one binary_sensor per used zone, announced during
// the startup zone enumeration, with state published on every zone event.
type Publisher struct {
	client paho.Client
	prefix string
}

func New(cfg config.MQTTConfig) (*Publisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.BrokerHost, cfg.BrokerPort)).
		SetClientID("texecom-connect").
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connect to broker %s: timed out", cfg.BrokerHost)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	log.Infof("Connected to MQTT broker %s:%d", cfg.BrokerHost, cfg.BrokerPort)
	return &Publisher{client: client, prefix: cfg.TopicPrefix}, nil
}

// discoveryPayload is the Home Assistant MQTT discovery config message.
type discoveryPayload struct {
	Name        string `json:"name"`
	DeviceClass string `json:"device_class"`
	StateTopic  string `json:"state_topic"`
	PayloadOn   int    `json:"payload_on"`
	PayloadOff  int    `json:"payload_off"`
	UniqueID    string `json:"unique_id"`
}

// zoneSlug lowercases a zone label into a topic component.
func zoneSlug(text string) string {
	return strings.ToLower(strings.ReplaceAll(text, " ", "_"))
}

// deviceClass maps the zone type to a Home Assistant device class:
// Entry/Exit 1 as door, Silent PA as safety, everything else (Entry/Exit 2
// included) as motion.
func deviceClass(zoneType string) string {
	switch zoneType {
	case protocol.ZoneType(1).String():
		return "door"
	case protocol.ZoneType(8).String():
		return "safety"
	default:
		return "motion"
	}
}

func (p *Publisher) topicBase(zoneText string) string {
	return fmt.Sprintf("%s/binary_sensor/%s", p.prefix, zoneSlug(zoneText))
}

// ZoneLoaded announces one zone to Home Assistant. The monitor invokes it
// during the site-data zone enumeration, at startup and on each reload.
func (p *Publisher) ZoneLoaded(z panel.ZoneSnapshot) {
	base := p.topicBase(z.Text)
	payload := discoveryPayload{
		Name:        zoneSlug(z.Text),
		DeviceClass: deviceClass(z.Type),
		StateTopic:  base + "/state",
		PayloadOn:   1,
		PayloadOff:  0,
		UniqueID:    fmt.Sprintf("texecom_zone_%d", z.Number),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("Marshal discovery config for zone %d: %v", z.Number, err)
		return
	}
	p.publish(base+"/config", data)
}

// Run consumes monitor updates and publishes zone states until ctx is
// cancelled or the channel closes.
func (p *Publisher) Run(ctx context.Context, updates <-chan session.Update) {
	for {
		select {
		case <-ctx.Done():
			p.client.Disconnect(250)
			return
		case u, ok := <-updates:
			if !ok {
				p.client.Disconnect(250)
				return
			}
			ev, isZone := u.Event.(protocol.ZoneEvent)
			if !isZone || u.Zone == nil {
				continue
			}
			state := 0
			if ev.State.Status() == protocol.ZoneActive {
				state = 1
			}
			topic := p.topicBase(u.Zone.Text) + "/state"
			p.publish(topic, []byte(fmt.Sprintf("%d", state)))
		}
	}
}

func (p *Publisher) publish(topic string, payload []byte) {
	token := p.client.Publish(topic, 0, false, payload)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Warnf("MQTT publish to %s failed: %v", topic, token.Error())
		}
	}()
}
