package main

import (
	"fmt"
	"log"
	"os"

	"github.com/schollz/progressbar/v3"
	"gorm.io/gorm"

	"sd-index/models"
	"sd-index/utils"
)

// removeFile is swapped out in tests to simulate filesystem failures.
var removeFile = os.Remove

type duplicateGroup struct {
	ContentHash string
	MemberCount int64
}

// DedupeMismatch reports one file where the disk state and the catalog state
// could not be changed together.
type DedupeMismatch struct {
	Path   string
	Detail string
}

type DedupeSummary struct {
	Groups       int64
	FilesDeleted int64
	RowsRemoved  int64
	BytesFreed   int64
	Mismatches   []DedupeMismatch
}

// CountDuplicates reports how many groups and redundant files a resolution
// pass would touch, so the caller can ask for confirmation first.
func (ctx *Context) CountDuplicates() (int64, int64, error) {
	groups, err := ctx.duplicateGroups()

	if err != nil {
		return 0, 0, err
	}

	var redundant int64

	for _, group := range groups {
		redundant += group.MemberCount - 1
	}

	return int64(len(groups)), redundant, nil
}

// DeduplicateByHash removes every redundant copy in each content-hash group,
// keeping exactly one survivor per group. Irreversible: the caller must have
// obtained explicit confirmation. Refuses to run alongside a scan.
func (ctx *Context) DeduplicateByHash(confirmed bool) (*DedupeSummary, error) {
	if !confirmed {
		return nil, ErrDedupeNotConfirmed
	}

	err := ctx.beginRun("dedupe")

	if err != nil {
		return nil, err
	}

	defer ctx.endRun()

	groups, err := ctx.duplicateGroups()

	if err != nil {
		return nil, err
	}

	summary := &DedupeSummary{Groups: int64(len(groups))}

	if len(groups) == 0 {
		utils.ConsoleAndLogPrintf("No duplicate content hashes found.")
		return summary, nil
	}

	utils.ConsoleAndLogPrintf("Resolving %s", utils.Pluralize("duplicate group", int64(len(groups))))

	bar := progressbar.Default(int64(len(groups)))

	for _, group := range groups {
		if err = ctx.resolveGroup(group.ContentHash, summary); err != nil {
			return summary, err
		}

		if barErr := bar.Add(1); barErr != nil {
			log.Printf("failed to update progress bar: %v", barErr)
		}
	}

	utils.ConsoleAndLogPrintf("De-duplication complete. Groups: %d Files deleted: %d Rows removed: %d", summary.Groups, summary.FilesDeleted, summary.RowsRemoved)

	for _, mismatch := range summary.Mismatches {
		utils.ConsoleAndLogPrintf("Mismatch for \"%s\": %s", mismatch.Path, mismatch.Detail)
	}

	return summary, nil
}

func (ctx *Context) duplicateGroups() ([]duplicateGroup, error) {
	var groups []duplicateGroup
	result := ctx.DB.Raw(QueryDuplicateContentHashes()).Scan(&groups)

	if result.Error != nil {
		return nil, result.Error
	}

	return groups, nil
}

// resolveGroup removes all but one member of a content-hash group. The
// survivor is the still-on-disk file with the lexicographically smallest
// path, which keeps the choice stable across re-scans and databases.
func (ctx *Context) resolveGroup(contentHash string, summary *DedupeSummary) error {
	var members []models.File
	result := ctx.DB.Where("content_hash = ?", contentHash).Order("path").Find(&members)

	if result.Error != nil {
		return result.Error
	}

	if len(members) < 2 {
		return nil
	}

	survivorIndex := 0

	for i, member := range members {
		if IsFile(member.Path) {
			survivorIndex = i
			break
		}
	}

	var removableIDs []uint

	for i, member := range members {
		if i == survivorIndex {
			continue
		}

		if IsFile(member.Path) {
			if err := removeFile(member.Path); err != nil {
				// Disk and catalog must stay in step: keep the row too
				summary.Mismatches = append(summary.Mismatches, DedupeMismatch{
					Path:   member.Path,
					Detail: fmt.Sprintf("file delete failed, record kept: %v", err),
				})
				continue
			}

			summary.FilesDeleted++
			summary.BytesFreed += member.Size
		}

		removableIDs = append(removableIDs, member.ID)
	}

	if len(removableIDs) == 0 {
		return nil
	}

	err := ctx.DB.Transaction(func(tx *gorm.DB) error {
		return deleteFileRows(tx, removableIDs)
	})

	if err != nil {
		// The files are already gone from disk; surface the divergence
		for _, member := range members {
			for _, id := range removableIDs {
				if member.ID == id {
					summary.Mismatches = append(summary.Mismatches, DedupeMismatch{
						Path:   member.Path,
						Detail: fmt.Sprintf("file deleted but record delete failed: %v", err),
					})
				}
			}
		}

		return nil
	}

	summary.RowsRemoved += int64(len(removableIDs))
	return nil
}
