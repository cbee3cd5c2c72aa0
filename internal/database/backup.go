package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// BackupConfig configures scheduled SQLite snapshots.
type BackupConfig struct {
	Enabled   bool
	Cron      string
	Dir       string
	Retention time.Duration
}

type BackupService struct {
	db     *DB
	config BackupConfig
	logger *zerolog.Logger
}

func NewBackupService(db *DB, cfg BackupConfig, logger *zerolog.Logger) *BackupService {
	return &BackupService{
		db:     db,
		config: cfg,
		logger: logger,
	}
}

// Start runs backups on the configured schedule until ctx is done.
func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("backup service is disabled")
		return
	}

	c := cron.New(cron.WithLocation(time.UTC))
	_, err := c.AddFunc(s.config.Cron, func() {
		if _, err := s.PerformBackup(ctx); err != nil {
			s.logger.Error().Err(err).Msg("scheduled backup failed")
		}
		if deleted, err := s.CleanupOldBackups(time.Now()); err != nil {
			s.logger.Error().Err(err).Msg("backup cleanup failed")
		} else if deleted > 0 {
			s.logger.Info().Int("deleted", deleted).Msg("cleaned up old backups")
		}
	})
	if err != nil {
		s.logger.Error().Err(err).Str("cron", s.config.Cron).Msg("invalid backup schedule")
		return
	}

	s.logger.Info().Str("cron", s.config.Cron).Str("dir", s.config.Dir).Msg("backup service started")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
}

// PerformBackup writes a consistent snapshot of the database into the backup
// directory and returns its path.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	timestamp := time.Now().UTC().Format("20060102_150405")
	dest := filepath.Join(s.config.Dir, fmt.Sprintf("remindr_%s.db", timestamp))

	s.logger.Info().Str("path", dest).Msg("performing database backup")
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, dest); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", dest, err)
	}

	s.logger.Info().Str("path", dest).Msg("backup completed")
	return dest, nil
}

// CleanupOldBackups removes snapshots older than the retention period.
func (s *BackupService) CleanupOldBackups(now time.Time) (int, error) {
	if s.config.Retention <= 0 {
		return 0, nil
	}

	files, err := os.ReadDir(s.config.Dir)
	if err != nil {
		return 0, err
	}

	cutoff := now.Add(-s.config.Retention)
	deleted := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), "remindr_") || !strings.HasSuffix(file.Name(), ".db") {
			continue
		}

		info, err := file.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.config.Dir, file.Name())); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	return deleted, nil
}
