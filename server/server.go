package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/davidMbrooke/texecom-connect/panel"
	"github.com/davidMbrooke/texecom-connect/session"
)

// PanelSource is what the server needs from the monitor: snapshot reads and
// an update subscription. It never issues panel commands.
type PanelSource interface {
	Info() (panel.Info, bool)
	Zones() []panel.ZoneSnapshot
	Areas() []panel.AreaSnapshot
	Users() []panel.UserSnapshot
	Subscribe() chan session.Update
	Unsubscribe(ch chan session.Update)
}

// Server exposes panel state and a live event stream over HTTP.
type Server struct {
	port       int
	version    string
	source     PanelSource
	ring       *EventRing
	router     *mux.Router
	httpServer *http.Server
}

func New(port int, version string, source PanelSource) *Server {
	s := &Server{
		port:    port,
		version: version,
		source:  source,
		ring:    NewEventRing(defaultRingSize),
		router:  mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/version", s.handleVersion).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/zones", s.handleZones).Methods("GET")
	api.HandleFunc("/areas", s.handleAreas).Methods("GET")
	api.HandleFunc("/users", s.handleUsers).Methods("GET")
	api.HandleFunc("/events", s.handleEvents).Methods("GET")
	api.HandleFunc("/events/stream", s.handleStream).Methods("GET")
}

// Run serves until ctx is cancelled. It also feeds the catch-up ring from
// its own update subscription.
func (s *Server) Run(ctx context.Context) error {
	updates := s.source.Subscribe()
	defer s.source.Unsubscribe(updates)
	go func() {
		for u := range updates {
			s.ring.Add(u)
		}
	}()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		log.Info("Context done, shutting down HTTP server")
		s.httpServer.Shutdown(context.Background())
	}()

	log.Infof("Starting web server on port %d", s.port)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		log.Info("HTTP server closed cleanly")
		return nil
	}
	return err
}
