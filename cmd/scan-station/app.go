package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BearBump/PassportDesk/config"
	"github.com/BearBump/PassportDesk/internal/cache/rediscache"
	"github.com/BearBump/PassportDesk/internal/integrations/passportapi"
	"github.com/BearBump/PassportDesk/internal/services/dispatch"
	"github.com/BearBump/PassportDesk/internal/services/events"
	"github.com/BearBump/PassportDesk/internal/services/feedback"
	"github.com/BearBump/PassportDesk/internal/services/pending"
	"github.com/BearBump/PassportDesk/internal/storage/filesnapshot"
	"github.com/BearBump/PassportDesk/internal/storage/snapshot"
)

const (
	backendFile   = "file"
	backendRedis  = "redis"
	backendMemory = "memory"

	defaultSnapshotFile = "pending-scans.json"
)

type stationFactories struct {
	newSnapshotStore  func(cfg *config.Config) (store snapshot.Store, closeFn func(), err error)
	newClient         func(cfg *config.Config) dispatch.BulkClient
	newPassportClient func(cfg *config.Config) passportClient
	newPlayer         func(cfg *config.Config) feedback.PlayerFactory
}

func defaultStationFactories() stationFactories {
	return stationFactories{
		newSnapshotStore: func(cfg *config.Config) (snapshot.Store, func(), error) {
			sc := cfg.ScanStation
			switch strings.ToLower(strings.TrimSpace(sc.SnapshotBackend)) {
			case "", backendFile:
				path := sc.SnapshotPath
				if path == "" {
					path = defaultSnapshotPath()
				}
				st, err := filesnapshot.New(path)
				if err != nil {
					return nil, nil, err
				}
				return st, nil, nil
			case backendRedis:
				key := sc.SnapshotKey
				if key == "" {
					key = snapshot.DefaultKey
				}
				rdb := rediscache.Dial(cfg.Redis.Addr())
				return rediscache.NewSnapshotStore(rdb, key), func() { _ = rdb.Close() }, nil
			case backendMemory:
				return snapshot.NewMemory(), nil, nil
			default:
				return nil, nil, fmt.Errorf("unknown snapshot backend %q", sc.SnapshotBackend)
			}
		},
		newClient: func(cfg *config.Config) dispatch.BulkClient {
			return newAPIClient(cfg)
		},
		newPassportClient: func(cfg *config.Config) passportClient {
			return newAPIClient(cfg)
		},
		newPlayer: func(cfg *config.Config) feedback.PlayerFactory {
			return feedback.TerminalBellFactory(os.Stdout)
		},
	}
}

func newAPIClient(cfg *config.Config) *passportapi.Client {
	timeout := time.Duration(cfg.ScanStation.RequestTimeoutSeconds) * time.Second
	return passportapi.New(cfg.ScanStation.APIBaseURL, cfg.ScanStation.ActionToken, timeout)
}

func defaultSnapshotPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return filepath.Join(".passportdesk", defaultSnapshotFile)
	}
	return filepath.Join(dir, "passportdesk", defaultSnapshotFile)
}

type station struct {
	queue      *pending.Queue
	reconciler *dispatch.Reconciler
	bus        *events.Bus
	logger     *slog.Logger

	closeFn func()
}

// openStation wires the queue and the reconciler. The queue is not restored
// yet, so observers subscribed before restore also see the restored event.
func openStation(cfg *config.Config, f stationFactories, logger *slog.Logger) (*station, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store, closeFn, err := f.newSnapshotStore(cfg)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus()
	q := pending.New(store, bus, logger)
	return &station{
		queue:      q,
		reconciler: dispatch.New(q, f.newClient(cfg), bus, logger),
		bus:        bus,
		logger:     logger,
		closeFn:    closeFn,
	}, nil
}

func (s *station) restore(ctx context.Context) error {
	_, err := s.queue.Restore(ctx)
	return err
}

func (s *station) Close() {
	if s.closeFn != nil {
		s.closeFn()
	}
}
