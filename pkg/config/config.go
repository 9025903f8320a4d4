// Package config loads the engine's top-level configuration: conference defaults,
// telemetry, and logging, the same way the original account/call factory hands a
// conference.Config to every new core it starts.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/savoirfairelinux/confcore/pkg/conference"
	"github.com/savoirfairelinux/confcore/pkg/telemetry"
)

// Config is the engine-wide configuration: per-conference policy defaults, telemetry
// export settings, and the logging level.
type Config struct {
	Conference conference.Config `yaml:"conference"`
	Telemetry  telemetry.Config  `yaml:"telemetry"`
	// Starting from which level to log stuff.
	LogLevel string `yaml:"log"`
}

// ErrNoConfigEnvVar is returned when the CONFIG environment variable is not set.
var ErrNoConfigEnvVar = errors.New("environment variable not set or invalid")

// LoadConfig tries to load a config from the CONFIG environment variable. If it's not
// set, it falls back to loading a config file from path.
func LoadConfig(path string) (*Config, error) {
	config, err := LoadConfigFromEnv()
	if err != nil {
		if !errors.Is(err, ErrNoConfigEnvVar) {
			return nil, err
		}

		return LoadConfigFromPath(path)
	}

	return config, nil
}

// LoadConfigFromEnv tries to load the config from the CONFIG environment variable.
func LoadConfigFromEnv() (*Config, error) {
	configEnv := os.Getenv("CONFIG")
	if configEnv == "" {
		return nil, ErrNoConfigEnvVar
	}

	return LoadConfigFromString(configEnv)
}

// LoadConfigFromPath tries to load a config from the provided file path.
func LoadConfigFromPath(path string) (*Config, error) {
	logrus.WithField("path", path).Info("loading config")

	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return LoadConfigFromString(string(file))
}

// LoadConfigFromString loads a config from a YAML string, applying defaults for any
// conference setting left unset before validating.
func LoadConfigFromString(configString string) (*Config, error) {
	config := Config{Conference: conference.DefaultConfig()}

	if err := yaml.Unmarshal([]byte(configString), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML file: %w", err)
	}

	if config.Conference.BroadcastQueueSize <= 0 {
		return nil, errors.New("invalid config: conference.broadcastQueueSize must be positive")
	}

	if config.Conference.VideoRouterQueueSize <= 0 {
		return nil, errors.New("invalid config: conference.videoRouterQueueSize must be positive")
	}

	return &config, nil
}
