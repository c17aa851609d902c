package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"cart-flipper/server/internal/correction"
	"cart-flipper/server/internal/version"
)

// ErrInvalidSettings reports a settings file with out-of-range values.
var ErrInvalidSettings = errors.New("config: invalid settings")

// Settings are the tunables shared by authority and peers.
type Settings struct {
	// CorrectionKey is the input binding that triggers a request on a
	// client. The authority ignores it.
	CorrectionKey string `mapstructure:"correctionKey"`
	MaxAttempts   int    `mapstructure:"maxAttempts"`
	// SynchronizedKeys marks tunables whose value peers must share.
	SynchronizedKeys map[string]bool `mapstructure:"synchronized"`

	LiftHeight     float64       `mapstructure:"liftHeight"`
	LiftDuration   time.Duration `mapstructure:"liftDuration"`
	RotateDuration time.Duration `mapstructure:"rotateDuration"`
	SettleDuration time.Duration `mapstructure:"settleDuration"`
	SettleFactor   float64       `mapstructure:"settleFactor"`
	NudgeImpulse   float64       `mapstructure:"nudgeImpulse"`

	VersionGraceDelay time.Duration `mapstructure:"versionGraceDelay"`
	RequestsPerSecond float64       `mapstructure:"requestsPerSecond"`
	RequestBurst      int           `mapstructure:"requestBurst"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("correctionKey", "F8")
	v.SetDefault("maxAttempts", correction.DefaultMaxAttempts)
	v.SetDefault("synchronized", map[string]bool{"maxAttempts": true})
	v.SetDefault("liftHeight", correction.DefaultLiftHeight)
	v.SetDefault("liftDuration", correction.DefaultLiftDuration)
	v.SetDefault("rotateDuration", correction.DefaultRotateDuration)
	v.SetDefault("settleDuration", correction.DefaultSettleDuration)
	v.SetDefault("settleFactor", correction.DefaultSettleFactor)
	v.SetDefault("nudgeImpulse", correction.DefaultNudgeImpulse)
	v.SetDefault("versionGraceDelay", version.DefaultGraceDelay)
	v.SetDefault("requestsPerSecond", 2.0)
	v.SetDefault("requestBurst", 4)
}

// DefaultSettings returns the tunables used when no file is present.
func DefaultSettings() Settings {
	s, err := decode(viper.New())
	if err != nil {
		panic(err)
	}
	return s
}

// LoadSettings reads the settings file at path. A missing file yields the
// defaults; any other read or decode failure is returned.
func LoadSettings(path string) (Settings, error) {
	v := viper.New()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Settings{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return Settings{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}
	return decode(v)
}

func decode(v *viper.Viper) (Settings, error) {
	setDefaults(v)
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("config: decode settings: %w", err)
	}
	if s.MaxAttempts < 1 {
		return Settings{}, fmt.Errorf("%w: maxAttempts must be a positive integer, got %d", ErrInvalidSettings, s.MaxAttempts)
	}
	return s, nil
}

// Synchronized reports whether peers must share key's value. Keys are
// matched case-insensitively.
func (s Settings) Synchronized(key string) bool {
	for name, synced := range s.SynchronizedKeys {
		if strings.EqualFold(name, key) {
			return synced
		}
	}
	return false
}

// Correction maps the tunables onto the engine configuration.
func (s Settings) Correction() correction.Config {
	return correction.Config{
		MaxAttempts:    s.MaxAttempts,
		LiftHeight:     s.LiftHeight,
		LiftDuration:   s.LiftDuration,
		RotateDuration: s.RotateDuration,
		SettleDuration: s.SettleDuration,
		SettleFactor:   s.SettleFactor,
		NudgeImpulse:   s.NudgeImpulse,
	}
}
