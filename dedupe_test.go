package main

import (
	"errors"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sd-index/models"
)

func seedDuplicateImages(t *testing.T, ctx *Context) string {
	imageDir := createTempImageDir(t)

	// Three byte-identical copies plus one unrelated file
	writeImageWithParams(t, path.Join(imageDir, "a.png"), "cat\nSteps: 20, Sampler: DDIM, CFG scale: 7, Seed: 1")
	copyTestFile(t, path.Join(imageDir, "a.png"), path.Join(imageDir, "b.png"))
	copyTestFile(t, path.Join(imageDir, "a.png"), path.Join(imageDir, "c.png"))
	writeImageWithParams(t, path.Join(imageDir, "unique.png"), "dog\nSteps: 30, Sampler: DDIM, CFG scale: 7, Seed: 2")

	_, err := ctx.IndexFiles(imageDir, ModeAddOnly)
	require.NoError(t, err)

	return imageDir
}

func copyTestFile(t *testing.T, sourcePath string, destinationPath string) {
	data, err := os.ReadFile(sourcePath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(destinationPath, data, 0600))
}

func TestCountDuplicates(t *testing.T) {
	ctx := testContext(t)
	seedDuplicateImages(t, ctx)

	groups, redundant, err := ctx.CountDuplicates()
	require.NoError(t, err)

	assert.Equal(t, int64(1), groups)
	assert.Equal(t, int64(2), redundant)
}

func TestDeduplicateByHash(t *testing.T) {
	ctx := testContext(t)
	imageDir := seedDuplicateImages(t, ctx)

	summary, err := ctx.DeduplicateByHash(true)
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.Groups)
	assert.Equal(t, int64(2), summary.FilesDeleted)
	assert.Equal(t, int64(2), summary.RowsRemoved)
	assert.Positive(t, summary.BytesFreed)
	assert.Empty(t, summary.Mismatches)

	// The lexicographically smallest path survives
	assert.True(t, IsFile(path.Join(imageDir, "a.png")))
	assert.False(t, IsFile(path.Join(imageDir, "b.png")))
	assert.False(t, IsFile(path.Join(imageDir, "c.png")))
	assert.True(t, IsFile(path.Join(imageDir, "unique.png")))

	var paths []string
	require.NoError(t, ctx.DB.Model(&models.File{}).Order("path").Pluck("path", &paths).Error)
	assert.Equal(t, []string{path.Join(imageDir, "a.png"), path.Join(imageDir, "unique.png")}, paths)
}

func TestDeduplicateRequiresConfirmation(t *testing.T) {
	ctx := testContext(t)
	imageDir := seedDuplicateImages(t, ctx)

	_, err := ctx.DeduplicateByHash(false)
	assert.ErrorIs(t, err, ErrDedupeNotConfirmed)

	// Nothing is touched without confirmation
	assert.True(t, IsFile(path.Join(imageDir, "b.png")))
}

func TestDeduplicateSurvivorMustExistOnDisk(t *testing.T) {
	ctx := testContext(t)
	imageDir := seedDuplicateImages(t, ctx)

	// The smallest path is already gone; the next member takes over
	require.NoError(t, os.Remove(path.Join(imageDir, "a.png")))

	summary, err := ctx.DeduplicateByHash(true)
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.FilesDeleted)
	assert.Equal(t, int64(2), summary.RowsRemoved)
	assert.True(t, IsFile(path.Join(imageDir, "b.png")))
	assert.False(t, IsFile(path.Join(imageDir, "c.png")))
}

func TestDeduplicateIsIdempotent(t *testing.T) {
	ctx := testContext(t)
	seedDuplicateImages(t, ctx)

	_, err := ctx.DeduplicateByHash(true)
	require.NoError(t, err)

	summary, err := ctx.DeduplicateByHash(true)
	require.NoError(t, err)

	assert.Zero(t, summary.Groups)
	assert.Zero(t, summary.FilesDeleted)
	assert.Zero(t, summary.RowsRemoved)
}

func TestDeduplicateReportsDiskDeleteFailure(t *testing.T) {
	ctx := testContext(t)
	imageDir := seedDuplicateImages(t, ctx)

	removeFile = func(string) error { return errors.New("text file busy") }
	defer func() { removeFile = os.Remove }()

	summary, err := ctx.DeduplicateByHash(true)
	require.NoError(t, err)

	assert.Zero(t, summary.FilesDeleted)
	assert.Zero(t, summary.RowsRemoved)
	require.Len(t, summary.Mismatches, 2)
	assert.Contains(t, summary.Mismatches[0].Detail, "record kept")

	// Disk and catalog stay in step: the undeletable files keep their rows
	assert.True(t, IsFile(path.Join(imageDir, "b.png")))
	assert.True(t, IsFile(path.Join(imageDir, "c.png")))

	var count int64
	require.NoError(t, ctx.DB.Model(&models.File{}).Count(&count).Error)
	assert.Equal(t, int64(4), count)
}

func TestDeduplicateReportsRecordDeleteFailure(t *testing.T) {
	ctx := testContext(t)
	imageDir := seedDuplicateImages(t, ctx)

	// Freeze file rows so the record delete fails after the disk delete
	require.NoError(t, ctx.DB.Exec("CREATE TRIGGER freeze_files BEFORE DELETE ON files BEGIN SELECT RAISE(ABORT, 'frozen'); END").Error)

	summary, err := ctx.DeduplicateByHash(true)
	require.NoError(t, err)

	assert.Equal(t, int64(2), summary.FilesDeleted)
	assert.Zero(t, summary.RowsRemoved)
	require.Len(t, summary.Mismatches, 2)
	assert.Contains(t, summary.Mismatches[0].Detail, "record delete failed")

	assert.False(t, IsFile(path.Join(imageDir, "b.png")))
	assert.False(t, IsFile(path.Join(imageDir, "c.png")))

	var count int64
	require.NoError(t, ctx.DB.Model(&models.File{}).Count(&count).Error)
	assert.Equal(t, int64(4), count)
}

func TestDeduplicateRefusesConcurrentRun(t *testing.T) {
	ctx := testContext(t)

	require.NoError(t, ctx.beginRun("index"))
	defer ctx.endRun()

	_, err := ctx.DeduplicateByHash(true)
	assert.ErrorIs(t, err, ErrOperationInProgress)
}
