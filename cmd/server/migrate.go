package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soaringjerry/Wellbeing/internal/api"
	"github.com/soaringjerry/Wellbeing/internal/config"
	dbstore "github.com/soaringjerry/Wellbeing/internal/db"
	"github.com/soaringjerry/Wellbeing/internal/logger"
)

func newMigrateCommand(cfgPath *string) *cobra.Command {
	var snapshot, sqlitePath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Import a memory-store JSON snapshot into a new SQLite database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log, cfg.Server.Mode)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if snapshot == "" {
				snapshot = cfg.Storage.SnapshotPath
			}
			if sqlitePath == "" {
				sqlitePath = cfg.Storage.SQLitePath
			}
			if snapshot == "" {
				return errors.New("no snapshot given: pass --snapshot or set storage.snapshot_path")
			}
			return MigrateIfNeeded(snapshot, sqlitePath, cfg.Storage.MigrationsDir, log)
		},
	}
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "memory store snapshot to import")
	cmd.Flags().StringVar(&sqlitePath, "sqlite", "", "sqlite database to create")
	return cmd
}

// MigrateIfNeeded copies a legacy snapshot into sqlitePath on first run. An existing
// database or a missing snapshot is left alone.
func MigrateIfNeeded(snapshotPath, sqlitePath, migrationsDir string, log *zap.Logger) error {
	if sqlitePath == "" {
		return errors.New("sqlite path is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if _, err := os.Stat(sqlitePath); err == nil {
		return nil // already migrated
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("check sqlite file: %w", err)
	}

	legacyStore, err := api.NewMemoryStoreFromPath(snapshotPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load legacy snapshot: %w", err)
	}
	snapshot := api.MemoryStoreSnapshot(legacyStore)
	if snapshot == nil {
		return nil
	}

	log.Info("first run detected, importing legacy snapshot",
		zap.String("snapshot", snapshotPath), zap.String("sqlite", sqlitePath))

	dst, err := dbstore.NewStore(sqlitePath, migrationsDir)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := dst.Close(); cerr != nil {
			log.Warn("close sqlite db", zap.Error(cerr))
		}
	}()

	if err := copySnapshotToStore(context.Background(), snapshot, dst); err != nil {
		// A half-filled database would block the next attempt.
		_ = dst.Close()
		for _, p := range []string{sqlitePath, sqlitePath + "-wal", sqlitePath + "-shm"} {
			_ = os.Remove(p)
		}
		return fmt.Errorf("copy data: %w", err)
	}

	log.Info("legacy snapshot imported",
		zap.Int("users", len(snapshot.Users)),
		zap.Int("assessments", len(snapshot.Assessments)),
		zap.Int("drafts", len(snapshot.Drafts)))
	return nil
}

// copySnapshotToStore inserts users first, then history in snapshot order so the
// insertion tiebreak survives, then drafts. Duplicates are skipped.
func copySnapshotToStore(ctx context.Context, snap *api.LegacySnapshot, dst api.Store) error {
	for _, u := range snap.Users {
		if u == nil {
			continue
		}
		if err := dst.AddUser(ctx, u); err != nil && !errors.Is(err, api.ErrDuplicate) {
			return fmt.Errorf("user %s: %w", u.ID, err)
		}
	}
	for _, a := range snap.Assessments {
		if a == nil {
			continue
		}
		if err := dst.AddAssessment(ctx, a); err != nil && !errors.Is(err, api.ErrDuplicate) {
			return fmt.Errorf("assessment %s: %w", a.ID, err)
		}
	}
	for _, d := range snap.Drafts {
		if d == nil {
			continue
		}
		if err := dst.UpsertDraft(ctx, d); err != nil {
			return fmt.Errorf("draft %s: %w", d.SessionID, err)
		}
	}
	return nil
}
