package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the coordinator's yaml-file configuration. Environment
// variables override the database and bus endpoints (see getEnv callers).
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Rooms struct {
		MaxRooms       int `yaml:"max_rooms"`
		SeatCount      int `yaml:"seat_count"`
		MinSeats       int `yaml:"min_seats"`
		PacksPerSeat   int `yaml:"packs_per_seat"`
		PackSize       int `yaml:"pack_size"`
		PickTimeoutSec int `yaml:"pick_timeout_sec"`
		GraceSec       int `yaml:"grace_sec"`
		RoundBreakSec  int `yaml:"round_break_sec"`
		SweepSec       int `yaml:"sweep_sec"`
		RetentionSec   int `yaml:"retention_sec"`
		FillTimeoutSec int `yaml:"fill_timeout_sec"`
	} `yaml:"rooms"`

	Archive struct {
		Enabled bool   `yaml:"enabled"`
		NATSURL string `yaml:"nats_url"`
	} `yaml:"archive"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// No config file means defaults plus environment overrides.
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Rooms.MaxRooms == 0 {
		c.Rooms.MaxRooms = 200
	}
	if c.Rooms.SeatCount == 0 {
		c.Rooms.SeatCount = 8
	}
	if c.Rooms.MinSeats == 0 {
		c.Rooms.MinSeats = 2
	}
	if c.Rooms.PacksPerSeat == 0 {
		c.Rooms.PacksPerSeat = 3
	}
	if c.Rooms.PackSize == 0 {
		c.Rooms.PackSize = 14
	}
	if c.Rooms.PickTimeoutSec == 0 {
		c.Rooms.PickTimeoutSec = 60
	}
	if c.Rooms.GraceSec == 0 {
		c.Rooms.GraceSec = 45
	}
	if c.Rooms.SweepSec == 0 {
		c.Rooms.SweepSec = 30
	}
	if c.Rooms.RetentionSec == 0 {
		c.Rooms.RetentionSec = 300
	}
	if c.Rooms.FillTimeoutSec == 0 {
		c.Rooms.FillTimeoutSec = 1800
	}
}

func (c *Config) pickTimeout() time.Duration {
	return time.Duration(c.Rooms.PickTimeoutSec) * time.Second
}

func (c *Config) gracePeriod() time.Duration {
	return time.Duration(c.Rooms.GraceSec) * time.Second
}

func (c *Config) roundBreak() time.Duration {
	return time.Duration(c.Rooms.RoundBreakSec) * time.Second
}
