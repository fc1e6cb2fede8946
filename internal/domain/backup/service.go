// Package backup writes a logical dump of the ledger to object storage.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/khatabook/creditbook/internal/domain/account"
	"github.com/khatabook/creditbook/internal/domain/credit"
	"github.com/khatabook/creditbook/internal/domain/notification"
	"github.com/khatabook/creditbook/internal/pkg/database"
	"github.com/khatabook/creditbook/internal/pkg/storage"
)

// Prefix is the storage prefix every snapshot is written under
const Prefix = "backups/"

// Snapshot is the full contents of the ledger at one point in time
type Snapshot struct {
	TakenAt       time.Time            `json:"taken_at"`
	Accounts      []account.Account    `json:"accounts"`
	Credits       []credit.Credit      `json:"credits"`
	Notifications []notification.Entry `json:"notifications"`
}

type Service struct {
	db    *sqlx.DB
	store storage.Storage
	now   func() time.Time
}

func NewService(db *sqlx.DB, store storage.Storage) *Service {
	return &Service{db: db, store: store, now: time.Now}
}

// Take reads all three tables in one read transaction so the snapshot is consistent.
func (s *Service) Take(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{TakenAt: s.now().UTC()}
	err := database.WithReadTx(ctx, s.db, func(ctx context.Context, tx database.Queryer) error {
		var err error
		if snap.Accounts, err = account.NewRepository(tx).List(ctx); err != nil {
			return err
		}
		if snap.Credits, err = credit.NewRepository(tx).ListAll(ctx); err != nil {
			return err
		}
		snap.Notifications, err = notification.NewRepository(tx).ListAll(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return snap, nil
}

// Run takes a snapshot and stores it, returning the object key.
func (s *Service) Run(ctx context.Context) (string, error) {
	snap, err := s.Take(ctx)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	key := fmt.Sprintf("%screditbook-%s-%s.json", Prefix, snap.TakenAt.Format("20060102T150405.000000000Z"), uuid.New().String())
	if err := s.store.Put(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
		return "", fmt.Errorf("store snapshot: %w", err)
	}

	log.Info().
		Str("key", key).
		Int("accounts", len(snap.Accounts)).
		Int("credits", len(snap.Credits)).
		Int("notifications", len(snap.Notifications)).
		Msg("Backup written")
	return key, nil
}

// List returns the stored snapshot keys, oldest first.
func (s *Service) List(ctx context.Context) ([]string, error) {
	return s.store.List(ctx, Prefix)
}

// Load reads back the snapshot stored at key.
func (s *Service) Load(ctx context.Context, key string) (*Snapshot, error) {
	if !strings.HasPrefix(key, Prefix) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}

	rc, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var snap Snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return &snap, nil
}

// Remove deletes one snapshot. A key that is not stored is ErrNotFound.
func (s *Service) Remove(ctx context.Context, key string) error {
	if !strings.HasPrefix(key, Prefix) {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}

	ok, err := s.store.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return err
	}
	log.Info().Str("key", key).Msg("Backup removed")
	return nil
}

// Prune deletes all but the newest keep snapshots and returns the deleted keys.
// Keys embed a UTC timestamp, so lexical order is age order.
func (s *Service) Prune(ctx context.Context, keep int) ([]string, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep must not be negative, got %d", keep)
	}

	keys, err := s.store.List(ctx, Prefix)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	if len(keys) <= keep {
		return []string{}, nil
	}

	stale := keys[:len(keys)-keep]
	for _, key := range stale {
		if err := s.store.Delete(ctx, key); err != nil {
			return nil, fmt.Errorf("delete %s: %w", key, err)
		}
	}
	log.Info().Int("deleted", len(stale)).Int("kept", keep).Msg("Backups pruned")
	return stale, nil
}
