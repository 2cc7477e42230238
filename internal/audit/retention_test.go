package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFakeSegment(t *testing.T, dir string, createdAt time.Time, seq int) string {
	t.Helper()
	path := filepath.Join(dir, segmentFileName(createdAt, seq))
	require.NoError(t, os.WriteFile(path, []byte(`{"timestamp":"2026-01-01T00:00:00Z","type":"access","action":"x","user_id":"u","ip_address":"1.2.3.4"}`+"\n"), 0o644))
	return path
}

func TestRetentionDeletesOldSegments(t *testing.T) {
	dir := t.TempDir()
	old := writeFakeSegment(t, dir, time.Now().UTC().AddDate(0, 0, -10), 0)
	recent := writeFakeSegment(t, dir, time.Now().UTC(), 1)

	deleted, err := ApplyRetentionPolicy(dir, 5, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(recent)
	assert.NoError(t, err)
}

func TestRetentionExemptsActiveSegment(t *testing.T) {
	dir := t.TempDir()
	active := writeFakeSegment(t, dir, time.Now().UTC().AddDate(0, 0, -100), 0)

	deleted, err := ApplyRetentionPolicy(dir, 5, active, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)

	_, err = os.Stat(active)
	assert.NoError(t, err)
}

func TestRetentionIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeFakeSegment(t, dir, time.Now().UTC().AddDate(0, 0, -10), 0)

	_, err := ApplyRetentionPolicy(dir, 5, "", nil)
	require.NoError(t, err)
	deleted, err := ApplyRetentionPolicy(dir, 5, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}
