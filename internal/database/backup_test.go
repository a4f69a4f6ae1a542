package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fixly/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformBackup(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "source.db")
	source, err := NewDB(dbPath)
	require.NoError(t, err)
	defer source.Close()
	seed(t, source)

	backupDir := t.TempDir()
	logger := zerolog.Nop()
	svc := NewBackupService(dbPath, config.BackupConfig{
		Enabled:       true,
		StoragePath:   backupDir,
		RetentionDays: 7,
	}, &logger)

	require.NoError(t, svc.PerformBackup())

	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "backup_")
}

func TestCleanupOldBackups(t *testing.T) {
	backupDir := t.TempDir()
	logger := zerolog.Nop()
	svc := NewBackupService("unused.db", config.BackupConfig{
		Enabled:       true,
		StoragePath:   backupDir,
		RetentionDays: 7,
	}, &logger)

	oldName := "backup_" + time.Now().AddDate(0, 0, -30).Format("20060102_150405") + ".db"
	freshName := "backup_" + time.Now().Format("20060102_150405") + ".db"
	require.NoError(t, os.WriteFile(filepath.Join(backupDir, oldName), []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(backupDir, freshName), []byte("fresh"), 0o644))

	svc.CleanupOldBackups()

	assert.NoFileExists(t, filepath.Join(backupDir, oldName))
	assert.FileExists(t, filepath.Join(backupDir, freshName))
}
