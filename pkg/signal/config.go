/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package signal

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"

	"github.com/srediag/plugin-signal/pkg/shm"
)

const (
	defaultShmDir            = "/dev/shm"
	defaultSegmentPrefix     = "signal."
	defaultEventPrefix       = "signal-event."
	defaultFileMode          = "0666"
	defaultRelayPollInterval = 100 * time.Millisecond
	defaultReadRetries       = 3
	defaultReadRetryInterval = 2 * time.Millisecond
	defaultMaxRelays         = 1024
	defaultLogLevel          = "warn"
)

// Config is used to tune the signals created by a Factory.
type Config struct {
	// ShmDir is the directory holding event and segment files. It should be a tmpfs.
	ShmDir string `env:"SIGNAL_SHM_DIR" envDefault:"/dev/shm" toml:"shm_dir"`
	// SegmentPrefix is prepended to the channel name to form the segment file name.
	SegmentPrefix string `env:"SIGNAL_SEGMENT_PREFIX" envDefault:"signal." toml:"segment_prefix"`
	// EventPrefix is prepended to the channel name to form the event file name.
	// Neither prefix may be a prefix of the other, so event and segment files of
	// different channels never share a name.
	EventPrefix string `env:"SIGNAL_EVENT_PREFIX" envDefault:"signal-event." toml:"event_prefix"`
	// FileMode is the octal permission for created files. 0666 lets every local user
	// open the channel.
	FileMode string `env:"SIGNAL_FILE_MODE" envDefault:"0666" toml:"file_mode"`
	// RelayPollInterval bounds how long a relay sleeps before re-checking for shutdown.
	RelayPollInterval time.Duration `env:"SIGNAL_RELAY_POLL_INTERVAL" envDefault:"100ms" toml:"relay_poll_interval"`
	// ReadRetries is how many times a failed segment read is retried.
	ReadRetries uint64 `env:"SIGNAL_READ_RETRIES" envDefault:"3" toml:"read_retries"`
	// ReadRetryInterval is the pause between read retries.
	ReadRetryInterval time.Duration `env:"SIGNAL_READ_RETRY_INTERVAL" envDefault:"2ms" toml:"read_retry_interval"`
	// MaxRelays caps the number of live cross-process signals per factory.
	MaxRelays int `env:"SIGNAL_MAX_RELAYS" envDefault:"1024" toml:"max_relays"`
	// MaxPayloadSize caps a serialized value.
	MaxPayloadSize int `env:"SIGNAL_MAX_PAYLOAD_SIZE" envDefault:"67108864" toml:"max_payload_size"`
	// RemoveOnClose deletes the channel's files when a cross-process signal closes.
	// Other processes still attached keep working on the unlinked files.
	RemoveOnClose bool `env:"SIGNAL_REMOVE_ON_CLOSE" envDefault:"false" toml:"remove_on_close"`
	// LogLevel is a zerolog level name.
	LogLevel string `env:"SIGNAL_LOG_LEVEL" envDefault:"warn" toml:"log_level"`
}

// DefaultConfig is used to return a default configuration.
func DefaultConfig() *Config {
	return &Config{
		ShmDir:            defaultShmDir,
		SegmentPrefix:     defaultSegmentPrefix,
		EventPrefix:       defaultEventPrefix,
		FileMode:          defaultFileMode,
		RelayPollInterval: defaultRelayPollInterval,
		ReadRetries:       defaultReadRetries,
		ReadRetryInterval: defaultReadRetryInterval,
		MaxRelays:         defaultMaxRelays,
		MaxPayloadSize:    shm.DefaultMaxPayloadSize,
		LogLevel:          defaultLogLevel,
	}
}

// LoadConfig reads the configuration from SIGNAL_* environment variables, falling
// back to the defaults.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("signal: parse env: %w", err)
	}
	if err := VerifyConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile layers a TOML file over LoadConfig. Keys present in the file win.
func LoadConfigFile(path string) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("signal: parse env: %w", err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("signal: decode %s: %w", path, err)
	}
	if err := VerifyConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// VerifyConfig is used to verify the sanity of configuration
func VerifyConfig(config *Config) error {
	if config == nil {
		return errors.New("signal: config is nil")
	}
	if config.ShmDir == "" {
		return errors.New("signal: ShmDir must not be empty")
	}
	if err := verifyPrefix("SegmentPrefix", config.SegmentPrefix); err != nil {
		return err
	}
	if err := verifyPrefix("EventPrefix", config.EventPrefix); err != nil {
		return err
	}
	if strings.HasPrefix(config.SegmentPrefix, config.EventPrefix) ||
		strings.HasPrefix(config.EventPrefix, config.SegmentPrefix) {
		return fmt.Errorf("signal: SegmentPrefix %q and EventPrefix %q overlap",
			config.SegmentPrefix, config.EventPrefix)
	}
	if _, err := config.fileMode(); err != nil {
		return err
	}
	if config.RelayPollInterval <= 0 {
		return errors.New("signal: RelayPollInterval must be positive")
	}
	if config.ReadRetryInterval < 0 {
		return errors.New("signal: ReadRetryInterval must not be negative")
	}
	if config.MaxRelays <= 0 {
		return errors.New("signal: MaxRelays must be positive")
	}
	if config.MaxPayloadSize <= 0 {
		return errors.New("signal: MaxPayloadSize must be positive")
	}
	if _, err := zerolog.ParseLevel(config.LogLevel); err != nil {
		return fmt.Errorf("signal: LogLevel: %w", err)
	}
	return nil
}

func verifyPrefix(field, prefix string) error {
	if err := shm.ValidateName(prefix); err != nil {
		return fmt.Errorf("signal: %s: %w", field, err)
	}
	// temp segment files start with a dot
	if strings.HasPrefix(prefix, ".") {
		return fmt.Errorf("signal: %s %q must not start with a dot", field, prefix)
	}
	return nil
}

func (c *Config) fileMode() (uint32, error) {
	m, err := strconv.ParseUint(c.FileMode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("signal: FileMode %q is not octal: %w", c.FileMode, err)
	}
	if m > 0o777 {
		return 0, fmt.Errorf("signal: FileMode %q has bits outside 0777", c.FileMode)
	}
	return uint32(m), nil
}
