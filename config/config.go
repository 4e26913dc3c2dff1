package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/davidMbrooke/texecom-connect/session"
)

type Config struct {
	Panel  session.Config `yaml:"panel"`
	MQTT   MQTTConfig     `yaml:"mqtt"`
	Hooks  HooksConfig    `yaml:"hooks"`
	Server ServerConfig   `yaml:"server"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BrokerHost  string `yaml:"broker_host"`
	BrokerPort  int    `yaml:"broker_port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

type HooksConfig struct {
	// Script is executed with a single argument ("connection lost" or
	// "connection regained") on outage transitions.
	Script string `yaml:"script"`
}

type ServerConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads the YAML config file, falling back to defaults when it does
// not exist, then applies environment overrides. The environment alone is
// enough to run against a panel.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Panel: session.Config{
			Host:                "192.168.1.9",
			Port:                10001,
			UDLPassword:         "1234", // factory default; set a real one with Wintex
			SmoothedActiveDelay: 30 * time.Second,
		},
		MQTT: MQTTConfig{
			BrokerHost:  "192.168.1.1",
			BrokerPort:  1883,
			TopicPrefix: "homeassistant",
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv layers the documented environment options over the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("TEXHOST"); v != "" {
		c.Panel.Host = v
	}
	if v := os.Getenv("TEXPORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Panel.Port = port
		}
	}
	if v := os.Getenv("UDLPASSWORD"); v != "" {
		c.Panel.UDLPassword = v
	}
	if v := os.Getenv("BROKER_URL"); v != "" {
		c.MQTT.BrokerHost = v
		c.MQTT.Enabled = true
	}
	if v := os.Getenv("BROKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.MQTT.BrokerPort = port
		}
	}
	if v := os.Getenv("BROKER_USER"); v != "" {
		c.MQTT.Username = v
	}
	if v := os.Getenv("BROKER_PASS"); v != "" {
		c.MQTT.Password = v
	}
}
