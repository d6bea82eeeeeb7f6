//
//
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Validate enforces range and consistency rules on cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validateBackend(&cfg.Backend); err != nil {
		return fmt.Errorf("backend validation failed: %w", err)
	}

	if err := validateTiming(&cfg.Timing); err != nil {
		return fmt.Errorf("timing validation failed: %w", err)
	}

	if err := validateChart(&cfg.Chart); err != nil {
		return fmt.Errorf("chart validation failed: %w", err)
	}

	if cfg.Alarms.HistorySize < 1 {
		return fmt.Errorf("alarms validation failed: history size must be positive, got %d", cfg.Alarms.HistorySize)
	}

	if err := validateLimits(&cfg.Limits); err != nil {
		return fmt.Errorf("limits validation failed: %w", err)
	}

	if err := validateLog(&cfg.Log); err != nil {
		return fmt.Errorf("log validation failed: %w", err)
	}

	if err := validateSim(&cfg.Sim); err != nil {
		return fmt.Errorf("sim validation failed: %w", err)
	}

	return nil
}

func validateBackend(b *BackendConfig) error {
	u, err := url.Parse(b.URL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", b.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", b.URL)
	}
	if !strings.HasPrefix(b.SocketPath, "/") {
		return fmt.Errorf("socket path must start with /, got %q", b.SocketPath)
	}
	if b.Origin == "" {
		return fmt.Errorf("origin must not be empty")
	}
	return nil
}

func validateTiming(t *TimingConfig) error {
	if t.DialTimeout <= 0 {
		return fmt.Errorf("dial timeout must be positive, got %v", t.DialTimeout)
	}
	if t.CommandTimeout <= 0 {
		return fmt.Errorf("command timeout must be positive, got %v", t.CommandTimeout)
	}
	if t.QueryTimeout < t.CommandTimeout {
		return fmt.Errorf("query timeout %v must be >= command timeout %v", t.QueryTimeout, t.CommandTimeout)
	}
	if t.PushInterval <= 0 {
		return fmt.Errorf("push interval must be positive, got %v", t.PushInterval)
	}
	return nil
}

func validateChart(c *ChartConfig) error {
	if c.DedupThreshold <= 0 || c.DedupThreshold > 1 {
		return fmt.Errorf("dedup threshold must be in (0, 1] mm, got %v", c.DedupThreshold)
	}
	return nil
}

func validateLimits(l *LimitsConfig) error {
	if l.MaxForce <= 0 {
		return fmt.Errorf("max force must be positive, got %v", l.MaxForce)
	}
	if l.MaxStroke <= 0 {
		return fmt.Errorf("max stroke must be positive, got %v", l.MaxStroke)
	}
	if l.MinSpeed <= 0 {
		return fmt.Errorf("min speed must be positive, got %v", l.MinSpeed)
	}
	if l.MaxSpeed < l.MinSpeed {
		return fmt.Errorf("max speed %v must be >= min speed %v", l.MaxSpeed, l.MinSpeed)
	}
	return nil
}

func validateLog(l *LogConfig) error {
	if _, err := ParseLevel(l.Level); err != nil {
		return err
	}
	if l.MaxSizeMB < 1 {
		return fmt.Errorf("max size must be at least 1 MB, got %d", l.MaxSizeMB)
	}
	if l.MaxBackups < 0 {
		return fmt.Errorf("max backups must be non-negative, got %d", l.MaxBackups)
	}
	if l.MaxAgeDays < 0 {
		return fmt.Errorf("max age must be non-negative, got %d", l.MaxAgeDays)
	}
	return nil
}

func validateSim(s *SimConfig) error {
	if s.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if s.SampleStiffness <= 0 {
		return fmt.Errorf("sample stiffness must be positive, got %v", s.SampleStiffness)
	}
	if s.CompleteHold <= 0 {
		return fmt.Errorf("complete hold must be positive, got %v", s.CompleteHold)
	}
	return nil
}

// ParseLevel maps a level name onto slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}
