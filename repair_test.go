package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sd-index/models"
)

type fakeRepairer struct {
	corrupt         bool
	quarantineError error
	rebuildError    error
	quarantined     bool
	rebuilt         bool
}

func (repairer *fakeRepairer) IntegrityCheck() error {
	if repairer.corrupt {
		return ErrCatalogCorrupt
	}

	return nil
}

func (repairer *fakeRepairer) Quarantine() (string, error) {
	if repairer.quarantineError != nil {
		return "", repairer.quarantineError
	}

	repairer.quarantined = true
	return "db.corrupt-20260101000000.db", nil
}

func (repairer *fakeRepairer) Rebuild() error {
	if repairer.rebuildError != nil {
		return repairer.rebuildError
	}

	repairer.rebuilt = true

	// Probing again after a rebuild must find a healthy store
	repairer.corrupt = false
	return nil
}

func TestRepairCycleHealthyStore(t *testing.T) {
	repairer := &fakeRepairer{}

	transitions, err := runRepairCycle(repairer)
	require.NoError(t, err)

	assert.Equal(t, []HealthState{StateHealthy}, transitions)
	assert.False(t, repairer.quarantined)
	assert.False(t, repairer.rebuilt)
}

func TestRepairCycleCorruptStore(t *testing.T) {
	repairer := &fakeRepairer{corrupt: true}

	transitions, err := runRepairCycle(repairer)
	require.NoError(t, err)

	assert.Equal(t, []HealthState{StateHealthy, StateQuarantined, StateRebuilding, StateHealthy}, transitions)
	assert.True(t, repairer.quarantined)
	assert.True(t, repairer.rebuilt)
}

func TestRepairCycleQuarantineFailure(t *testing.T) {
	failure := errors.New("rename blocked")
	repairer := &fakeRepairer{corrupt: true, quarantineError: failure}

	transitions, err := runRepairCycle(repairer)
	require.ErrorIs(t, err, failure)

	assert.Equal(t, []HealthState{StateHealthy, StateQuarantined}, transitions)
	assert.False(t, repairer.rebuilt)
}

func TestRepairCycleRebuildFailure(t *testing.T) {
	failure := errors.New("disk full")
	repairer := &fakeRepairer{corrupt: true, rebuildError: failure}

	transitions, err := runRepairCycle(repairer)
	require.ErrorIs(t, err, failure)

	assert.Equal(t, []HealthState{StateHealthy, StateQuarantined, StateRebuilding}, transitions)
}

func TestSqliteRepairerOnHealthyCatalog(t *testing.T) {
	ctx := testContext(t)
	repairer := &sqliteRepairer{ctx: ctx}

	assert.NoError(t, repairer.IntegrityCheck())
}

func TestSqliteRepairerQuarantineAndRebuild(t *testing.T) {
	ctx := testContext(t)
	repairer := &sqliteRepairer{ctx: ctx}

	quarantinePath, err := repairer.Quarantine()
	require.NoError(t, err)
	assert.True(t, IsFile(quarantinePath))
	assert.False(t, IsFile(ctx.Config.DBPath))

	require.NoError(t, repairer.Rebuild())

	var count int64
	require.NoError(t, ctx.DB.Model(&models.File{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestHealthStateString(t *testing.T) {
	assert.Equal(t, "healthy", StateHealthy.String())
	assert.Equal(t, "quarantined", StateQuarantined.String())
	assert.Equal(t, "rebuilding", StateRebuilding.String())
}
