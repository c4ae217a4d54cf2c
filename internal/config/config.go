// Package config loads server settings from ARENA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"arena-rooms/server/internal/matchmaking"
	"arena-rooms/server/internal/sched"
	"arena-rooms/server/internal/session"
	"arena-rooms/server/internal/spatial"
	"arena-rooms/server/logging"
)

// Config is the full server configuration.
type Config struct {
	Addr           string `env:"ADDR"            envDefault:":8080"`
	MaxConnections int    `env:"MAX_CONNECTIONS" envDefault:"2000"`

	Session SessionConfig `envPrefix:"SESSION_"`
	Grid    GridConfig    `envPrefix:"GRID_"`
	Loop    LoopConfig    `envPrefix:"LOOP_"`
	Logging LoggingConfig `envPrefix:"LOG_"`
	Journal JournalConfig `envPrefix:"JOURNAL_"`
	Tracing TracingConfig `envPrefix:"OTEL_"`
}

type SessionConfig struct {
	RoomSize            int           `env:"ROOM_SIZE"             envDefault:"2"`
	Countdown           time.Duration `env:"COUNTDOWN"             envDefault:"4s"`
	Grace               time.Duration `env:"GRACE"                 envDefault:"5s"`
	PlayerCountDebounce time.Duration `env:"PLAYER_COUNT_DEBOUNCE" envDefault:"500ms"`
	MaxRooms            int           `env:"MAX_ROOMS"             envDefault:"0"`
}

type GridConfig struct {
	RowWidth  int     `env:"ROW_WIDTH"   envDefault:"10"`
	CellSizeX float64 `env:"CELL_SIZE_X" envDefault:"20"`
	CellSizeZ float64 `env:"CELL_SIZE_Z" envDefault:"20"`
}

type LoopConfig struct {
	TickRate      int `env:"TICK_RATE"      envDefault:"15"`
	QueueCapacity int `env:"QUEUE_CAPACITY" envDefault:"1024"`
}

type LoggingConfig struct {
	Sinks       []string `env:"SINKS"        envDefault:"console" envSeparator:","`
	MinSeverity string   `env:"MIN_SEVERITY" envDefault:"info"`
	JSONPath    string   `env:"JSON_PATH"`
	BufferSize  int      `env:"BUFFER_SIZE"  envDefault:"512"`
}

type JournalConfig struct {
	Capacity   int           `env:"CAPACITY"    envDefault:"256"`
	MaxAge     time.Duration `env:"MAX_AGE"     envDefault:"0s"`
	SQLitePath string        `env:"SQLITE_PATH"`
}

type TracingConfig struct {
	Enabled     bool   `env:"ENABLED"      envDefault:"true"`
	Endpoint    string `env:"ENDPOINT"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"arena-rooms"`
}

// Load parses the environment with the ARENA_ prefix and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv loads ARENA_* variables into target.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: "ARENA_"}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Session.RoomSize < 1 {
		errs = append(errs, fmt.Errorf("room size must be positive, got %d", c.Session.RoomSize))
	}
	if c.Session.Countdown < 0 || c.Session.Grace < 0 {
		errs = append(errs, errors.New("countdown and grace must not be negative"))
	}
	if c.Grid.RowWidth < 1 {
		errs = append(errs, fmt.Errorf("grid row width must be positive, got %d", c.Grid.RowWidth))
	}
	if c.Grid.CellSizeX <= 0 || c.Grid.CellSizeZ <= 0 {
		errs = append(errs, errors.New("grid cell sizes must be positive"))
	}
	if c.Session.MaxRooms < 0 {
		errs = append(errs, fmt.Errorf("max rooms must not be negative, got %d", c.Session.MaxRooms))
	}
	if c.Loop.TickRate < 1 {
		errs = append(errs, fmt.Errorf("tick rate must be positive, got %d", c.Loop.TickRate))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Matchmaking maps the session and grid settings onto the coordinator config.
func (c Config) Matchmaking() matchmaking.Config {
	cfg := matchmaking.DefaultConfig()
	cfg.Session = session.Config{
		RoomSize:  c.Session.RoomSize,
		Countdown: c.Session.Countdown,
		Grace:     c.Session.Grace,
	}
	cfg.Grid = spatial.Grid{
		RowWidth:  c.Grid.RowWidth,
		CellSizeX: c.Grid.CellSizeX,
		CellSizeZ: c.Grid.CellSizeZ,
	}
	cfg.MaxRooms = c.Session.MaxRooms
	cfg.PlayerCountDebounce = c.Session.PlayerCountDebounce
	return cfg
}

// SchedLoop maps the loop settings.
func (c Config) SchedLoop() sched.LoopConfig {
	return sched.LoopConfig{TickRate: c.Loop.TickRate, QueueCapacity: c.Loop.QueueCapacity}
}

// Router maps the logging settings onto the router config.
func (c Config) Router() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = append([]string(nil), c.Logging.Sinks...)
	cfg.MinimumSeverity = logging.ParseSeverity(c.Logging.MinSeverity)
	cfg.BufferSize = c.Logging.BufferSize
	cfg.JSON.FilePath = c.Logging.JSONPath
	return cfg
}
