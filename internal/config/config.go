//
//
package config

import "time"

// Config is the complete runtime configuration.
type Config struct {
	Backend BackendConfig `yaml:"backend" envPrefix:"BACKEND_"`
	Timing  TimingConfig  `yaml:"timing" envPrefix:"TIMING_"`
	Chart   ChartConfig   `yaml:"chart" envPrefix:"CHART_"`
	Alarms  AlarmsConfig  `yaml:"alarms" envPrefix:"ALARMS_"`
	Limits  LimitsConfig  `yaml:"limits" envPrefix:"LIMITS_"`
	Log     LogConfig     `yaml:"log" envPrefix:"LOG_"`
	Sim     SimConfig     `yaml:"sim" envPrefix:"SIM_"`
}

// BackendConfig locates the machine backend.
type BackendConfig struct {
	URL        string `yaml:"url" env:"URL"`                // REST base URL
	SocketPath string `yaml:"socketPath" env:"SOCKET_PATH"` // websocket path on the same host
	Origin     string `yaml:"origin" env:"ORIGIN"`          // websocket Origin header
}

// TimingConfig holds connection and request bounds.
type TimingConfig struct {
	DialTimeout    time.Duration `yaml:"dialTimeout" env:"DIAL_TIMEOUT"`
	CommandTimeout time.Duration `yaml:"commandTimeout" env:"COMMAND_TIMEOUT"`
	QueryTimeout   time.Duration `yaml:"queryTimeout" env:"QUERY_TIMEOUT"`
	PushInterval   time.Duration `yaml:"pushInterval" env:"PUSH_INTERVAL"` // simulator telemetry cadence
}

// ChartConfig tunes the force/deflection series.
type ChartConfig struct {
	DedupThreshold float64 `yaml:"dedupThreshold" env:"DEDUP_THRESHOLD"` // mm
}

// AlarmsConfig sizes the recent alarm history.
type AlarmsConfig struct {
	HistorySize int `yaml:"historySize" env:"HISTORY_SIZE"`
}

// LimitsConfig holds the machine safety limits applied to test parameters.
type LimitsConfig struct {
	MaxForce  float64 `yaml:"maxForce" env:"MAX_FORCE"`   // kN
	MaxStroke float64 `yaml:"maxStroke" env:"MAX_STROKE"` // mm
	MinSpeed  float64 `yaml:"minSpeed" env:"MIN_SPEED"`   // mm/min
	MaxSpeed  float64 `yaml:"maxSpeed" env:"MAX_SPEED"`   // mm/min
}

// LogConfig controls the process log and the command audit trail.
type LogConfig struct {
	Level      string `yaml:"level" env:"LEVEL"`
	Dir        string `yaml:"dir" env:"DIR"` // empty logs to stderr only and disables the audit file
	MaxSizeMB  int    `yaml:"maxSizeMB" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"maxBackups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"maxAgeDays" env:"MAX_AGE_DAYS"`
}

// SimConfig configures the simulated backend.
type SimConfig struct {
	Listen          string        `yaml:"listen" env:"LISTEN"`
	SampleStiffness float64       `yaml:"sampleStiffness" env:"SAMPLE_STIFFNESS"` // N/m²
	CompleteHold    time.Duration `yaml:"completeHold" env:"COMPLETE_HOLD"`       // complete phase before idle
}

// Baseline returns the default configuration.
func Baseline() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:        "http://localhost:8000",
			SocketPath: "/ws",
			Origin:     "http://localhost",
		},
		Timing: TimingConfig{
			DialTimeout:    5 * time.Second,
			CommandTimeout: 5 * time.Second,
			QueryTimeout:   10 * time.Second,
			PushInterval:   100 * time.Millisecond,
		},
		Chart: ChartConfig{
			DedupThreshold: 0.01,
		},
		Alarms: AlarmsConfig{
			HistorySize: 50,
		},
		Limits: LimitsConfig{
			MaxForce:  200,
			MaxStroke: 500,
			MinSpeed:  1,
			MaxSpeed:  100,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Sim: SimConfig{
			Listen:          ":8000",
			SampleStiffness: 5200,
			CompleteHold:    2 * time.Second,
		},
	}
}
