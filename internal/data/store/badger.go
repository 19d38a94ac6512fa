package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"dtsresolve/internal/core/ports"
)

var _ ports.DurableStore = (*BadgerStore)(nil)

// BadgerConfig configures the embedded badger backend.
type BadgerConfig struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	Namespace  string
	TTL        time.Duration
	// GCInterval enables periodic value-log GC for on-disk stores.
	GCInterval time.Duration
	Logger     *slog.Logger
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

type BadgerStore struct {
	db     *badger.DB
	prefix []byte
	ttl    time.Duration
	logger *slog.Logger
	stopGC chan struct{}
	doneGC chan struct{}
}

func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent cache")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}

	s := &BadgerStore{
		db:     db,
		prefix: []byte(namespaceOrDefault(cfg.Namespace) + "\x00"),
		ttl:    cfg.TTL,
		logger: cfg.Logger,
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.doneGC = make(chan struct{})
		go s.runGC(cfg.GCInterval)
	}
	return s, nil
}

func (s *BadgerStore) key(k string) []byte {
	out := make([]byte, 0, len(s.prefix)+len(k))
	out = append(out, s.prefix...)
	return append(out, k...)
}

func (s *BadgerStore) Get(_ context.Context, key string) (string, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read cache entry %q: %w", key, err)
	}
	return string(value), true, nil
}

func (s *BadgerStore) Put(ctx context.Context, key, value string) error {
	return s.PutBatch(ctx, []ports.WriteRequest{{Key: key, Value: value}})
}

func (s *BadgerStore) PutBatch(_ context.Context, batch []ports.WriteRequest) error {
	if len(batch) == 0 {
		return nil
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, req := range batch {
			entry := badger.NewEntry(s.key(req.Key), []byte(req.Value))
			if s.ttl > 0 {
				entry = entry.WithTTL(s.ttl)
			}
			if err := txn.SetEntry(entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write cache batch: %w", err)
	}
	return nil
}

func (s *BadgerStore) runGC(interval time.Duration) {
	defer close(s.doneGC)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && s.logger != nil {
				s.logger.Warn("badger value log GC error", "error", err)
			}
		}
	}
}

func (s *BadgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.doneGC
		s.stopGC = nil
	}
	return s.db.Close()
}
