package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env    string       `yaml:"env" env-default:"local"`
	HTTP   HTTPConfig   `yaml:"http"`
	Client ClientConfig `yaml:"client"`
	WebRTC WebRTCConfig `yaml:"webrtc"`
	Rooms  RoomsConfig  `yaml:"rooms"`
	Sync   SyncConfig   `yaml:"sync"`
}

type HTTPConfig struct {
	Address string `yaml:"address" env-default:""`
}

type ClientConfig struct {
	WSURL      string `yaml:"ws_url" env-default:""`
	APIBaseURL string `yaml:"api_base_url" env-default:""`
}

type WebRTCConfig struct {
	STUNServers []string `yaml:"stun_servers" env-default:""`
}

type RoomsConfig struct {
	Capacity int `yaml:"capacity" env-default:"0"`
}

type SyncConfig struct {
	ReconcileDelayMs int `yaml:"reconcile_delay_ms" env-default:"0"`
	FlushIntervalMs  int `yaml:"flush_interval_ms" env-default:"0"`
}

func (s SyncConfig) ReconcileDelay() time.Duration {
	return time.Duration(s.ReconcileDelayMs) * time.Millisecond
}

func (s SyncConfig) FlushInterval() time.Duration {
	return time.Duration(s.FlushIntervalMs) * time.Millisecond
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	cfg.setDefaults()

	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = "config/local.yaml"
	}

	return res
}

func (c *Config) setDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.Client.WSURL == "" {
		c.Client.WSURL = "ws://localhost:8080"
	}
	if c.Client.APIBaseURL == "" {
		c.Client.APIBaseURL = "http://localhost:8080"
	}
	if len(c.WebRTC.STUNServers) == 0 {
		c.WebRTC.STUNServers = []string{"stun:stun.l.google.com:19302"}
	}
	if c.Rooms.Capacity <= 0 {
		c.Rooms.Capacity = 4
	}
	if c.Sync.ReconcileDelayMs <= 0 {
		c.Sync.ReconcileDelayMs = 750
	}
	if c.Sync.FlushIntervalMs <= 0 {
		// One animation frame at 60fps.
		c.Sync.FlushIntervalMs = 16
	}
}
