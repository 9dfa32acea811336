package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/rezkam/agentforge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *Store {
	t.Helper()
	db, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db, DriverSQLite)
}

func TestStore_SetGetDelete(t *testing.T) {
	s := openTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.Set(domain.JobStatusInfo{
		JobID: "j1", Type: "GeneratePlan", Status: domain.StatusRunning,
		Source: "webhookd", Attempts: 1, StartedAt: &now,
	}))

	got, ok, err := s.Get("j1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.StatusRunning, got.Status)
	assert.Equal(t, "GeneratePlan", got.Type)

	require.NoError(t, s.Delete("j1"))
	_, ok, err = s.Get("j1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ListByStatus_DescendingStartedAt(t *testing.T) {
	s := openTestDB(t)
	older := time.Now().Add(-time.Hour).UTC()
	newer := time.Now().UTC()

	require.NoError(t, s.Set(domain.JobStatusInfo{JobID: "old", Type: "t", Status: domain.StatusSucceeded, StartedAt: &older}))
	require.NoError(t, s.Set(domain.JobStatusInfo{JobID: "new", Type: "t", Status: domain.StatusSucceeded, StartedAt: &newer}))

	page, err := s.ListByStatus(domain.StatusSucceeded, 0, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "new", page[0].JobID)
	assert.Equal(t, "old", page[1].JobID)
}

func TestStore_Metrics(t *testing.T) {
	s := openTestDB(t)
	require.NoError(t, s.Set(domain.JobStatusInfo{JobID: "j1", Type: "t", Status: domain.StatusFailed}))
	require.NoError(t, s.Set(domain.JobStatusInfo{JobID: "j2", Type: "t", Status: domain.StatusFailed}))

	m, err := s.Metrics()
	require.NoError(t, err)
	assert.Equal(t, 2, m[domain.StatusFailed])
}

func TestDedup_RegisterOnce(t *testing.T) {
	db, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	d := NewDedup(db, DriverSQLite)

	owner, ok := d.Register("job-1", "key-a")
	require.True(t, ok)
	assert.Equal(t, "job-1", owner)

	owner, ok = d.Register("job-2", "key-a")
	assert.False(t, ok)
	assert.Equal(t, "job-1", owner)

	d.Unregister("job-1")
	_, ok = d.GetInFlight("key-a")
	assert.False(t, ok)
}
