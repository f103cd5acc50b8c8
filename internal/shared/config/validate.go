package config

import (
	"fmt"
	"strings"
)

// Validate performs business-rule validation on the loaded configuration.
func (c *Config) Validate() error {
	if c.Auth.Enabled && len(c.Auth.JWTSecret) < 32 && c.Server.IsProduction() {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters in production (got %d)", len(c.Auth.JWTSecret))
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text (got %q)", c.Log.Format)
	}

	if err := c.Evidence.validate(); err != nil {
		return fmt.Errorf("evidence: %w", err)
	}
	if err := c.Verification.validate(); err != nil {
		return fmt.Errorf("verification: %w", err)
	}
	if c.Lifecycle.SweepInterval <= 0 {
		return fmt.Errorf("lifecycle.sweep_interval must be > 0 (got %s)", c.Lifecycle.SweepInterval)
	}
	if c.Notification.Enabled && (c.Notification.Workers <= 0 || c.Notification.BufferSize <= 0) {
		return fmt.Errorf("notification.workers and notification.buffer_size must be > 0")
	}
	if c.Scorer.Timeout <= 0 {
		return fmt.Errorf("scorer.timeout must be > 0 (got %s)", c.Scorer.Timeout)
	}

	return nil
}

func (e EvidenceConfig) validate() error {
	if e.AIThreshold <= 0 || e.AIThreshold > 1 {
		return fmt.Errorf("ai_threshold must be in (0,1] (got %v)", e.AIThreshold)
	}
	if e.SimilarityThreshold <= 0 || e.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity must be in (0,1] (got %v)", e.SimilarityThreshold)
	}
	if e.WarningPenalty < 0 || e.WarningPenalty > 1 {
		return fmt.Errorf("warning_penalty must be in [0,1] (got %v)", e.WarningPenalty)
	}
	if e.LocationRadiusMeters <= 0 {
		return fmt.Errorf("location_radius_m must be > 0 (got %v)", e.LocationRadiusMeters)
	}
	if e.StalenessWindow <= 0 {
		return fmt.Errorf("staleness must be > 0 (got %s)", e.StalenessWindow)
	}
	if e.ValidationTimeout <= 0 {
		return fmt.Errorf("validation_timeout must be > 0 (got %s)", e.ValidationTimeout)
	}
	return nil
}

func (v VerificationConfig) validate() error {
	if v.HighVotes <= 0 || v.MediumVotes <= 0 || v.LowVotes <= 0 {
		return fmt.Errorf("required votes must be > 0 (high=%d medium=%d low=%d)", v.HighVotes, v.MediumVotes, v.LowVotes)
	}
	if v.HighVotes > v.MediumVotes || v.MediumVotes > v.LowVotes {
		return fmt.Errorf("required votes must not increase with severity (high=%d medium=%d low=%d)", v.HighVotes, v.MediumVotes, v.LowVotes)
	}
	if v.NoMargin < 1 {
		return fmt.Errorf("no_margin must be >= 1 (got %d)", v.NoMargin)
	}
	if v.Window <= 0 {
		return fmt.Errorf("window must be > 0 (got %s)", v.Window)
	}
	return nil
}
