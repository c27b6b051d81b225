// Package config parses the named options that tune the navigation core:
// thresholds, gains, durations and servo calibration.
package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v2"
)

// EscapeStrategy selects the post-touch maneuver.
type EscapeStrategy string

const (
	EscapeSimpleBackup  EscapeStrategy = "simple_backup"
	EscapeAlignedBackup EscapeStrategy = "aligned_backup"
)

// Config holds every tunable that governs cone approach, escape and search
// behavior, along with autopilot and servo calibration.
type Config struct {
	Rate int `yaml:"rate"`

	NormalSpeed float64 `yaml:"normal_speed"`
	MinSpeed    float64 `yaml:"min_speed"`
	MaxTurning  float64 `yaml:"max_turning"`

	ThrottleNeutral    int `yaml:"throttle_neutral"`
	ThrottleReverseMin int `yaml:"throttle_reverse_min"`
	ThrottleReverseMax int `yaml:"throttle_reverse_max"`
	ThrottleFwdMin     int `yaml:"throttle_fwd_min"`
	ThrottleFwdMax     int `yaml:"throttle_fwd_max"`

	SteeringNeutral  int `yaml:"steering_neutral"`
	SteeringLeftMax  int `yaml:"steering_left_max"`
	SteeringRightMax int `yaml:"steering_right_max"`

	ConeNormalMinArea   float64 `yaml:"cone_normal_min_area"`
	ConeRecoveryMinArea float64 `yaml:"cone_recovery_min_area"`
	ConeCloseDistance   float64 `yaml:"cone_close_distance"`

	ConeApproachUseThrottle bool    `yaml:"cone_approach_use_throttle"`
	ConeApproachKSpeed      float64 `yaml:"cone_approach_k_speed"`
	ConeApproachKTurning    float64 `yaml:"cone_approach_k_turning"`

	ConeTimeoutSeconds int `yaml:"cone_timeout_seconds"`

	EscapeStrategy        EscapeStrategy `yaml:"escape_strategy"`
	EscapeBackupDuration  float64        `yaml:"escape_backup_duration"`
	EscapeKSpeed          float64        `yaml:"escape_k_speed"`
	EscapeKTurning        float64        `yaml:"escape_k_turning"`
	EscapeMinSpeed        float64        `yaml:"escape_min_speed"`
	EscapeAngleTolerance  float64        `yaml:"escape_angle_tolerance"`

	DirectionChangeReverseSpeed    float64 `yaml:"direction_change_reverse_speed"`
	DirectionChangeReverseDuration float64 `yaml:"direction_change_reverse_duration"`
	DirectionChangeIdleDuration    float64 `yaml:"direction_change_idle_duration"`

	CirclingRelativeSpeed  float64 `yaml:"circling_relative_speed"`
	CirclingAngleTolerance float64 `yaml:"circling_angle_tolerance"`

	HorzFOVDegrees float64 `yaml:"horz_fov"`
	HorzPixels     int     `yaml:"horz_pixels"`

	ConeLostLimit int `yaml:"cone_lost_limit"`

	// GCSID, when present, is written to the autopilot as SYSID_MYGCS.
	GCSID *int `yaml:"gcs_id"`
}

// Default returns the configuration's tuned factory defaults.
func Default() Config {
	return Config{
		Rate:                           10,
		NormalSpeed:                    2.0,
		MinSpeed:                       0.1,
		MaxTurning:                     5.0,
		ThrottleNeutral:                1500,
		ThrottleReverseMin:             1500,
		ThrottleReverseMax:             1000,
		ThrottleFwdMin:                 1500,
		ThrottleFwdMax:                 2000,
		SteeringNeutral:                1500,
		SteeringLeftMax:                1000,
		SteeringRightMax:               2000,
		ConeNormalMinArea:              100,
		ConeRecoveryMinArea:            400,
		ConeCloseDistance:              2.0,
		ConeApproachUseThrottle:        false,
		ConeApproachKSpeed:             0.25,
		ConeApproachKTurning:           0.5,
		ConeTimeoutSeconds:             60,
		EscapeStrategy:                 EscapeSimpleBackup,
		EscapeBackupDuration:           1.0,
		EscapeKSpeed:                   2.0,
		EscapeKTurning:                 2.0,
		EscapeMinSpeed:                 0.7,
		EscapeAngleTolerance:           0.15,
		DirectionChangeReverseSpeed:    -1.0,
		DirectionChangeReverseDuration: 1.5,
		DirectionChangeIdleDuration:    1.0,
		CirclingRelativeSpeed:          1.5,
		CirclingAngleTolerance:         0.15,
		HorzFOVDegrees:                 70,
		HorzPixels:                     640,
		ConeLostLimit:                  15,
	}
}

// TickInterval returns the event-loop period implied by Rate.
func (c Config) TickInterval() time.Duration {
	if c.Rate <= 0 {
		return 100 * time.Millisecond
	}
	return time.Second / time.Duration(c.Rate)
}

// LoadFile overlays YAML-file values onto the defaults. A missing file is
// not an error — the rover runs on defaults until a field tune is supplied.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}
