package server

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidMbrooke/texecom-connect/panel"
	"github.com/davidMbrooke/texecom-connect/session"
)

type stubSource struct {
	info      panel.Info
	connected bool
	zones     []panel.ZoneSnapshot
	areas     []panel.AreaSnapshot
	users     []panel.UserSnapshot
}

func (s *stubSource) Info() (panel.Info, bool)           { return s.info, s.connected }
func (s *stubSource) Zones() []panel.ZoneSnapshot        { return s.zones }
func (s *stubSource) Areas() []panel.AreaSnapshot        { return s.areas }
func (s *stubSource) Users() []panel.UserSnapshot        { return s.users }
func (s *stubSource) Subscribe() chan session.Update     { return make(chan session.Update, 1) }
func (s *stubSource) Unsubscribe(ch chan session.Update) { close(ch) }

func testServer() (*Server, *stubSource) {
	source := &stubSource{
		info:      panel.Info{PanelType: "Premier", Firmware: "V4.00", NumberOfZones: 48},
		connected: true,
		zones: []panel.ZoneSnapshot{
			{Number: 1, Type: "Entry/Exit 1", Text: "Front Door", Active: true, SmoothedActive: true},
			{Number: 2, Type: "Interior", Text: "Hall PIR"},
		},
		areas: []panel.AreaSnapshot{{Number: 1, Name: "House", State: "armed"}},
		users: []panel.UserSnapshot{{Number: 0, Name: "Engineer"}},
	}
	return New(0, "test", source), source
}

func TestHandleStatus(t *testing.T) {
	s, _ := testServer()
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/status", nil))

	require.Equal(t, 200, rec.Code)
	var status statusInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Connected)
	assert.Equal(t, 48, status.Panel.NumberOfZones)
}

func TestHandleZones(t *testing.T) {
	s, _ := testServer()
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/zones", nil))

	require.Equal(t, 200, rec.Code)
	var zones []panel.ZoneSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &zones))
	require.Len(t, zones, 2)
	assert.Equal(t, "Front Door", zones[0].Text)
	assert.True(t, zones[0].Active)
}

func TestHandleAreasAndUsers(t *testing.T) {
	s, _ := testServer()

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/areas", nil))
	require.Equal(t, 200, rec.Code)
	var areas []panel.AreaSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &areas))
	require.Len(t, areas, 1)
	assert.Equal(t, "armed", areas[0].State)

	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/users", nil))
	require.Equal(t, 200, rec.Code)
	var users []panel.UserSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	require.Len(t, users, 1)
}

func TestHandleEventsFromRing(t *testing.T) {
	s, _ := testServer()
	s.ring.Add(session.Update{Time: time.Now(), Text: "Zone event message: zone 1 'Front Door' active"})

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/events", nil))
	require.Equal(t, 200, rec.Code)
	var updates []session.Update
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updates))
	require.Len(t, updates, 1)
	assert.Contains(t, updates[0].Text, "Front Door")
}

func TestEventRingBounded(t *testing.T) {
	ring := NewEventRing(3)
	for i := 0; i < 5; i++ {
		ring.Add(session.Update{Text: string(rune('a' + i))})
	}
	recent := ring.Recent()
	require.Len(t, recent, 3)
	assert.Equal(t, "c", recent[0].Text)
	assert.Equal(t, "e", recent[2].Text)
}
