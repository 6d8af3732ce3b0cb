package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sd-index/models"
)

func TestGetBatchesOfIDs(t *testing.T) {
	ctx := testContext(t)

	for i := 0; i < 12; i++ {
		rawMetadata := fmt.Sprintf("prompt %d\nSteps: 20", i)
		file := models.File{
			Path:        fmt.Sprintf("/images/%02d.png", i),
			ContentHash: fmt.Sprintf("hash%02d", i),
			RawMetadata: &rawMetadata,
		}
		require.NoError(t, ctx.DB.Create(&file).Error)
	}

	// BatchSize is 5, so 12 IDs split into 5 + 5 + 2
	total, batches, err := ctx.GetBatchesOfIDs(QueryFileIDsToExtract())
	require.NoError(t, err)

	assert.Equal(t, int64(12), total)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 5)
	assert.Len(t, batches[1], 5)
	assert.Len(t, batches[2], 2)

	var lastID uint

	for _, batch := range batches {
		for _, id := range batch {
			assert.Greater(t, id, lastID)
			lastID = id
		}
	}
}

func TestGetBatchesOfIDsEmptyResult(t *testing.T) {
	ctx := testContext(t)

	total, batches, err := ctx.GetBatchesOfIDs(QueryFileIDsToExtract())
	require.NoError(t, err)

	assert.Zero(t, total)
	assert.Empty(t, batches)
}

func TestQueryFileIDsToExtractSkipsFilesWithoutMetadata(t *testing.T) {
	ctx := testContext(t)

	rawMetadata := "prompt\nSteps: 20"
	withMetadata := models.File{Path: "/images/a.png", ContentHash: "hashA", RawMetadata: &rawMetadata}
	require.NoError(t, ctx.DB.Create(&withMetadata).Error)

	empty := ""
	require.NoError(t, ctx.DB.Create(&models.File{Path: "/images/b.png", ContentHash: "hashB", RawMetadata: &empty}).Error)
	require.NoError(t, ctx.DB.Create(&models.File{Path: "/images/c.png", ContentHash: "hashC"}).Error)

	total, batches, err := ctx.GetBatchesOfIDs(QueryFileIDsToExtract())
	require.NoError(t, err)

	assert.Equal(t, int64(1), total)
	require.Len(t, batches, 1)
	assert.Equal(t, []uint{withMetadata.ID}, batches[0])
}

func TestQueryKnownFileSignaturesScopesByRoot(t *testing.T) {
	ctx := testContext(t)

	require.NoError(t, ctx.DB.Create(&models.File{Path: "/library/a.png", ContentHash: "hashA", Size: 10, ModTime: 100}).Error)
	require.NoError(t, ctx.DB.Create(&models.File{Path: "/library/sub/b.png", ContentHash: "hashB", Size: 20, ModTime: 200}).Error)
	require.NoError(t, ctx.DB.Create(&models.File{Path: "/elsewhere/c.png", ContentHash: "hashC", Size: 30, ModTime: 300}).Error)

	var rows []knownFile
	require.NoError(t, ctx.DB.Raw(QueryKnownFileSignatures(), "/library/%").Scan(&rows).Error)

	require.Len(t, rows, 2)
	assert.Equal(t, "/library/a.png", rows[0].Path)
	assert.Equal(t, int64(10), rows[0].Size)
	assert.Equal(t, int64(100), rows[0].ModTime)
	assert.Equal(t, "/library/sub/b.png", rows[1].Path)
}

func TestQueryDuplicateContentHashes(t *testing.T) {
	ctx := testContext(t)

	require.NoError(t, ctx.DB.Create(&models.File{Path: "/images/a.png", ContentHash: "shared"}).Error)
	require.NoError(t, ctx.DB.Create(&models.File{Path: "/images/b.png", ContentHash: "shared"}).Error)
	require.NoError(t, ctx.DB.Create(&models.File{Path: "/images/c.png", ContentHash: "shared"}).Error)
	require.NoError(t, ctx.DB.Create(&models.File{Path: "/images/d.png", ContentHash: "lonely"}).Error)

	var groups []duplicateGroup
	require.NoError(t, ctx.DB.Raw(QueryDuplicateContentHashes()).Scan(&groups).Error)

	require.Len(t, groups, 1)
	assert.Equal(t, "shared", groups[0].ContentHash)
	assert.Equal(t, int64(3), groups[0].MemberCount)
}
