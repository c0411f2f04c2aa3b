package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"carrental/internal/config"
	"carrental/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupService(t *testing.T) {
	tempDir := t.TempDir()
	logger := zerolog.Nop()

	db, err := NewDB(filepath.Join(tempDir, "fleet.db"), &logger)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.UpsertDepot(context.Background(), &models.Depot{Name: "Central"}))

	storagePath := filepath.Join(tempDir, "backups")
	cfg := config.BackupConfig{Enabled: true, StoragePath: storagePath, RetentionDays: 1}
	s := NewBackupService(db, cfg, &logger)

	t.Run("PerformBackup", func(t *testing.T) {
		path, err := s.PerformBackup(context.Background())
		require.NoError(t, err)

		restored, err := NewDB(path, &logger)
		require.NoError(t, err)
		defer restored.Close()
		depots, err := restored.ListDepots(context.Background())
		require.NoError(t, err)
		assert.Len(t, depots, 1)
	})

	t.Run("CleanupOldBackups", func(t *testing.T) {
		oldFile := filepath.Join(storagePath, backupPrefix+"old.db")
		require.NoError(t, os.WriteFile(oldFile, []byte("old"), 0o644))
		unrelated := filepath.Join(storagePath, "notes.txt")
		require.NoError(t, os.WriteFile(unrelated, []byte("keep"), 0o644))

		oldTime := time.Now().AddDate(0, 0, -2)
		require.NoError(t, os.Chtimes(oldFile, oldTime, oldTime))
		require.NoError(t, os.Chtimes(unrelated, oldTime, oldTime))

		assert.Equal(t, 1, s.CleanupOldBackups())

		_, err := os.Stat(oldFile)
		assert.True(t, os.IsNotExist(err))
		_, err = os.Stat(unrelated)
		assert.NoError(t, err)
	})
}

func TestBackupService_Disabled(t *testing.T) {
	logger := zerolog.Nop()
	db := setupTestDB(t)
	s := NewBackupService(db, config.BackupConfig{Enabled: false}, &logger)
	assert.NoError(t, s.Run(context.Background()))
}

func TestBackupService_InMemory(t *testing.T) {
	logger := zerolog.Nop()
	db := setupTestDB(t)
	s := NewBackupService(db, config.BackupConfig{Enabled: true, StoragePath: t.TempDir()}, &logger)
	_, err := s.PerformBackup(context.Background())
	assert.Error(t, err)
}
