package engine

import (
	"errors"
	"fmt"
	"math"
	"time"

	"credtrust/internal/platform/config"
	"credtrust/internal/verification/models"
)

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid scoring config")

// Thresholds are the lower bounds of the verdict bands.
type Thresholds struct {
	Verified          int
	PartiallyVerified int
	Questionable      int
}

// Config controls which methods run and how their results combine.
type Config struct {
	// Weights selects the methods to run. A method without a weight is not run.
	Weights       map[models.Method]float64
	MethodTimeout time.Duration
	// MaxConcurrency bounds methods in flight per verification; zero means unbounded.
	MaxConcurrency int
	Thresholds     Thresholds
}

// DefaultConfig weights every method equally with a 3s timeout and 80/60/40 bands.
func DefaultConfig() Config {
	return FromScoring(config.DefaultScoring())
}

// FromScoring converts process configuration into engine configuration.
func FromScoring(sc config.ScoringConfig) Config {
	weights := make(map[models.Method]float64, len(sc.Weights))
	for name, w := range sc.Weights {
		weights[models.Method(name)] = w
	}
	return Config{
		Weights:        weights,
		MethodTimeout:  sc.MethodTimeout,
		MaxConcurrency: sc.MaxConcurrency,
		Thresholds: Thresholds{
			Verified:          sc.Thresholds.Verified,
			PartiallyVerified: sc.Thresholds.PartiallyVerified,
			Questionable:      sc.Thresholds.Questionable,
		},
	}
}

// Validate rejects negative weights, non-positive timeouts and thresholds
// that are out of range or not strictly descending.
func (c Config) Validate() error {
	for method, w := range c.Weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: weight for %s must be a non-negative number", ErrInvalidConfig, method)
		}
	}
	if c.MethodTimeout <= 0 {
		return fmt.Errorf("%w: method timeout must be positive", ErrInvalidConfig)
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("%w: max concurrency must not be negative", ErrInvalidConfig)
	}
	t := c.Thresholds
	if t.Verified > 100 || t.Questionable < 0 ||
		t.Verified <= t.PartiallyVerified || t.PartiallyVerified <= t.Questionable {
		return fmt.Errorf("%w: thresholds must satisfy 100 >= verified > partiallyVerified > questionable >= 0", ErrInvalidConfig)
	}
	return nil
}
