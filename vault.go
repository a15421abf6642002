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
	"context"
	"log/slog"
	"time"

	"github.com/poiesic/sessionvault/blobstore"
	"github.com/poiesic/sessionvault/queue"
	"github.com/poiesic/sessionvault/session"
	"github.com/poiesic/sessionvault/storage"
	"github.com/poiesic/sessionvault/storage/badger"
)

// shutdownTimeout bounds how long Close waits for the write queue to drain.
const shutdownTimeout = 30 * time.Second

// Vault is the assembled storage engine: one Badger backend underneath a
// blob store, a write queue and a session store.
type Vault struct {
	backend     *badger.Backend
	blobRepo    storage.BlobRepository
	sessionRepo storage.SessionRepository
	blobs       *blobstore.Store
	queue       *queue.Queue
	sessions    *session.Store
	logger      *slog.Logger
}

// VaultOption configures a Vault.
type VaultOption func(*vaultOptions)

type vaultOptions struct {
	config   *Config
	inMemory bool
	logger   *slog.Logger
}

// WithConfig overrides the default configuration.
func WithConfig(cfg *Config) VaultOption {
	return func(o *vaultOptions) {
		if cfg != nil {
			o.config = cfg
		}
	}
}

// WithInMemory opens the vault without touching disk. Used by tests and
// throwaway tooling.
func WithInMemory() VaultOption {
	return func(o *vaultOptions) {
		o.inMemory = true
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) VaultOption {
	return func(o *vaultOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Open assembles a vault at the given path.
func Open(filePath string, opts ...VaultOption) (*Vault, error) {
	options := &vaultOptions{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if err := options.config.Validate(); err != nil {
		return nil, err
	}
	cfg := options.config

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}

	blobRepo := badger.NewBlobRepository(backend)
	sessionRepo := badger.NewSessionRepository(backend)

	q, err := queue.New(backend, queue.Options{
		MaxItems:       cfg.Queue.MaxItems,
		BatchInterval:  cfg.Queue.BatchInterval.Std(),
		IdleInterval:   cfg.Queue.IdleInterval.Std(),
		LowBatchSize:   cfg.Queue.LowBatchSize,
		BaseRetryDelay: cfg.Queue.BaseRetryDelay.Std(),
		PoolSize:       cfg.Queue.PoolSize,
		Logger:         options.logger,
	})
	if err != nil {
		backend.Close()
		return nil, err
	}

	blobs, err := blobstore.NewStore(blobRepo, blobstore.WithLogger(options.logger))
	if err != nil {
		q.Shutdown(context.Background())
		backend.Close()
		return nil, err
	}

	sessions, err := session.NewStore(sessionRepo, blobs, q,
		session.WithCacheMaxBytes(cfg.Cache.MaxBytes),
		session.WithCacheTTL(cfg.Cache.TTL.Std()),
		session.WithChunkCapacity(cfg.Session.ChunkCapacity),
		session.WithLogger(options.logger),
	)
	if err != nil {
		q.Shutdown(context.Background())
		backend.Close()
		return nil, err
	}

	return &Vault{
		backend:     backend,
		blobRepo:    blobRepo,
		sessionRepo: sessionRepo,
		blobs:       blobs,
		queue:       q,
		sessions:    sessions,
		logger:      options.logger,
	}, nil
}

// Close drains the write queue and releases every resource. Pending writes
// get shutdownTimeout to land before the backend closes underneath them.
func (v *Vault) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := v.queue.Shutdown(ctx); err != nil {
		v.logger.Error("error draining write queue", "err", err)
	}

	if err := v.blobRepo.Close(); err != nil {
		v.logger.Error("error closing blob repository", "err", err)
		return err
	}
	if err := v.sessionRepo.Close(); err != nil {
		v.logger.Error("error closing session repository", "err", err)
		return err
	}

	if err := v.backend.Close(); err != nil {
		v.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// Sessions returns the session store.
func (v *Vault) Sessions() *session.Store {
	return v.sessions
}

// Blobs returns the blob store.
func (v *Vault) Blobs() *blobstore.Store {
	return v.blobs
}

// Queue returns the write queue.
func (v *Vault) Queue() *queue.Queue {
	return v.queue
}

// BlobRepository returns the raw blob repository.
func (v *Vault) BlobRepository() storage.BlobRepository {
	return v.blobRepo
}

// SessionRepository returns the raw session repository.
func (v *Vault) SessionRepository() storage.SessionRepository {
	return v.sessionRepo
}
