// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package sessionvault

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration so TOML files can use humane values like
// "5m" or "100ms".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds tuning knobs for a vault. Every field has a working default;
// a zero Config is not valid but DefaultConfig is.
type Config struct {
	Cache   CacheConfig   `toml:"cache"`
	Queue   QueueConfig   `toml:"queue"`
	Session SessionConfig `toml:"session"`
}

// SessionConfig tunes session record layout.
type SessionConfig struct {
	// ChunkCapacity is how many screenshots or audio segments one chunk
	// holds before the append APIs roll over.
	ChunkCapacity int `toml:"chunk_capacity"`
}

// CacheConfig tunes the session read cache.
type CacheConfig struct {
	// MaxBytes is the cache size budget.
	MaxBytes int64 `toml:"max_bytes"`

	// TTL expires cached entries. Zero disables expiry.
	TTL Duration `toml:"ttl"`
}

// QueueConfig tunes the asynchronous write queue.
type QueueConfig struct {
	// MaxItems caps pending writes before low-priority shedding starts.
	MaxItems int `toml:"max_items"`

	// BatchInterval is the normal-priority flush cadence.
	BatchInterval Duration `toml:"batch_interval"`

	// IdleInterval is the low-priority polling cadence.
	IdleInterval Duration `toml:"idle_interval"`

	// LowBatchSize bounds low-priority items per idle slice.
	LowBatchSize int `toml:"low_batch_size"`

	// BaseRetryDelay seeds the exponential retry backoff.
	BaseRetryDelay Duration `toml:"base_retry_delay"`

	// PoolSize sets the write worker pool size. Zero picks a default from
	// the CPU count.
	PoolSize int `toml:"pool_size"`
}

// DefaultConfig returns the configuration a vault runs with when no file is
// provided.
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			MaxBytes: 100 * 1024 * 1024,
			TTL:      Duration(5 * time.Minute),
		},
		Queue: QueueConfig{
			MaxItems:       1000,
			BatchInterval:  Duration(100 * time.Millisecond),
			IdleInterval:   Duration(time.Second),
			LowBatchSize:   10,
			BaseRetryDelay: Duration(50 * time.Millisecond),
		},
		Session: SessionConfig{
			ChunkCapacity: 50,
		},
	}
}

// LoadConfig reads a TOML config file over the defaults, so a file only
// needs to name the knobs it changes.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Cache.MaxBytes <= 0 {
		return errors.New("cache.max_bytes must be positive")
	}
	if c.Cache.TTL < 0 {
		return errors.New("cache.ttl must not be negative")
	}
	if c.Queue.MaxItems <= 0 {
		return errors.New("queue.max_items must be positive")
	}
	if c.Queue.BatchInterval.Std() <= 0 {
		return errors.New("queue.batch_interval must be positive")
	}
	if c.Queue.IdleInterval.Std() <= 0 {
		return errors.New("queue.idle_interval must be positive")
	}
	if c.Queue.LowBatchSize <= 0 {
		return errors.New("queue.low_batch_size must be positive")
	}
	if c.Queue.BaseRetryDelay.Std() <= 0 {
		return errors.New("queue.base_retry_delay must be positive")
	}
	if c.Queue.PoolSize < 0 {
		return errors.New("queue.pool_size must not be negative")
	}
	if c.Session.ChunkCapacity <= 0 {
		return errors.New("session.chunk_capacity must be positive")
	}
	return nil
}
