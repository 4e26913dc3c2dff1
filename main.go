package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/davidMbrooke/texecom-connect/config"
	"github.com/davidMbrooke/texecom-connect/hooks"
	"github.com/davidMbrooke/texecom-connect/mqtt"
	"github.com/davidMbrooke/texecom-connect/server"
	"github.com/davidMbrooke/texecom-connect/session"
)

var Version = "1.0.0"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	debug := flag.Bool("debug", false, "Log network traffic and debug detail")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Infof("Starting Texecom Connect monitor v%s", Version)
	log.Infof("  Panel: %s:%d", cfg.Panel.Host, cfg.Panel.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Shutting down...")
		cancel()
	}()

	monitor := session.NewMonitor(cfg.Panel, hooks.NewRunner(cfg.Hooks.Script))

	if cfg.MQTT.Enabled {
		publisher, err := mqtt.New(cfg.MQTT)
		if err != nil {
			log.Fatalf("MQTT setup failed: %v", err)
		}
		monitor.OnZoneLoaded(publisher.ZoneLoaded)
		updates := monitor.Subscribe()
		go publisher.Run(ctx, updates)
	}

	if cfg.Server.Enabled {
		srv := server.New(cfg.Server.Port, Version, monitor)
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Errorf("Server error: %v", err)
			}
		}()
	}

	if err := monitor.Run(ctx); err != nil {
		log.Fatalf("Monitor error: %v", err)
	}
}
