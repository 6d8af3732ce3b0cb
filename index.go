package main

import (
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"gorm.io/gorm"

	"sd-index/crypto"
	"sd-index/metadata"
	"sd-index/models"
	"sd-index/utils"
)

type IndexMode int

const (
	// ModeAddOnly assumes any known path is unchanged. In-place content
	// changes are invisible by contract; callers choose this for speed.
	ModeAddOnly IndexMode = iota
	// ModeFullRefresh re-processes known paths whose (size, mtime) pair
	// no longer matches the stored one.
	ModeFullRefresh
	// ModeStrictRefresh re-hashes every known path regardless of its
	// (size, mtime) signature, defeating timestamp forgery.
	ModeStrictRefresh
)

func (mode IndexMode) String() string {
	switch mode {
	case ModeAddOnly:
		return "add-only"
	case ModeFullRefresh:
		return "full-refresh"
	case ModeStrictRefresh:
		return "strict full-refresh"
	}

	return "unknown"
}

type IndexSummary struct {
	Scanned int64
	New     int64
	Updated int64
	Skipped int64
	Pruned  int64
	Errors  int64
}

type knownFile struct {
	ID          uint
	Path        string
	ContentHash string
	Size        int64
	ModTime     int64
}

type scanCandidate struct {
	fileID       uint // zero for paths not yet in the catalog
	priorHash    string
	absolutePath string
	size         int64
	modTime      int64
	createTime   int64
}

type scanResult struct {
	scanCandidate
	contentHash string
	width       *int
	height      *int
	rawMetadata *string
}

// IndexFiles runs one indexing pass over rootPath in the given mode, then an
// extraction pass unless extraction is disabled. The catalog is only ever
// observed in fully-committed batch states; stopping between batches is safe.
func (ctx *Context) IndexFiles(rootPath string, mode IndexMode) (*IndexSummary, error) {
	err := ctx.beginRun("index")

	if err != nil {
		return nil, err
	}

	defer ctx.endRun()

	if err = ctx.CheckAndRepair(); err != nil {
		return nil, err
	}

	absoluteRootPath, err := filepath.Abs(rootPath)

	if err != nil || !IsDir(absoluteRootPath) {
		return nil, ErrCouldNotResolvePath
	}

	utils.ConsoleAndLogPrintf("Indexing \"%s\" (%s mode)", absoluteRootPath, mode)

	known, err := ctx.loadKnownFiles(absoluteRootPath)

	if err != nil {
		return nil, err
	}

	summary := &IndexSummary{}
	candidates, seen := ctx.collectCandidates(absoluteRootPath, mode, known, summary)

	if len(candidates) > 0 {
		utils.ConsoleAndLogPrintf("Processing %s in %s", utils.Pluralize("file", int64(len(candidates))), utils.Pluralize("batch", batchCount(int64(len(candidates)), ctx.Config.BatchSize)))

		if err = ctx.processCandidates(candidates, summary); err != nil {
			return summary, err
		}
	}

	if err = ctx.pruneMissingFiles(known, seen, summary); err != nil {
		return summary, err
	}

	utils.ConsoleAndLogPrintf("Indexing complete. New: %d Updated: %d Skipped: %d Pruned: %d Errors: %d", summary.New, summary.Updated, summary.Skipped, summary.Pruned, summary.Errors)

	if !ctx.Config.DisableExtraction {
		extractSummary, extractErr := ctx.extractFiles()

		if extractErr != nil {
			return summary, extractErr
		}

		utils.ConsoleAndLogPrintf("Extraction: processed=%d written=%d skipped=%d no-metadata=%d", extractSummary.Processed, extractSummary.Written, extractSummary.Skipped, extractSummary.NoMetadata)
	}

	return summary, nil
}

func (ctx *Context) loadKnownFiles(absoluteRootPath string) (map[string]knownFile, error) {
	var rows []knownFile
	likePattern := absoluteRootPath + string(os.PathSeparator) + "%"
	result := ctx.DB.Raw(QueryKnownFileSignatures(), likePattern).Scan(&rows)

	if result.Error != nil {
		return nil, result.Error
	}

	known := make(map[string]knownFile, len(rows))

	for _, row := range rows {
		known[row.Path] = row
	}

	return known, nil
}

// collectCandidates walks the tree and decides, per mode, which files need
// hashing and parsing. The walk itself never touches the catalog.
func (ctx *Context) collectCandidates(absoluteRootPath string, mode IndexMode, known map[string]knownFile, summary *IndexSummary) ([]scanCandidate, map[string]bool) {
	var candidates []scanCandidate
	seen := make(map[string]bool, len(known))

	err := ctx.ScanImages(absoluteRootPath, func(absolutePath string, entry fs.DirEntry) error {
		summary.Scanned++
		seen[absolutePath] = true
		existing, isKnown := known[absolutePath]

		if isKnown && mode == ModeAddOnly {
			summary.Skipped++
			return nil
		}

		info, err := entry.Info()

		if err != nil {
			log.Printf("Could not stat \"%s\": %v", absolutePath, err)
			summary.Errors++
			return nil
		}

		size := info.Size()
		modTime := info.ModTime().Unix()

		if isKnown && mode == ModeFullRefresh && existing.Size == size && existing.ModTime == modTime {
			summary.Skipped++
			return nil
		}

		candidate := scanCandidate{
			absolutePath: absolutePath,
			size:         size,
			modTime:      modTime,
			createTime:   modTime,
		}

		if isKnown {
			candidate.fileID = existing.ID
			candidate.priorHash = existing.ContentHash
		}

		candidates = append(candidates, candidate)
		return nil
	})

	if err != nil {
		log.Printf("Walk of \"%s\" ended early: %v", absoluteRootPath, err)
		summary.Errors++
	}

	return candidates, seen
}

// processCandidates hashes and reads each candidate through the worker pool,
// then commits the results one batch-transaction at a time. A batch either
// fully commits or fully rolls back.
func (ctx *Context) processCandidates(candidates []scanCandidate, summary *IndexSummary) error {
	bar := progressbar.Default(int64(len(candidates)))
	batchSize := int(ctx.Config.BatchSize)

	if batchSize < 1 {
		batchSize = 1
	}

	for start := 0; start < len(candidates); start += batchSize {
		end := start + batchSize

		if end > len(candidates) {
			end = len(candidates)
		}

		batch := candidates[start:end]
		var results []scanResult
		orchestrator := utils.NewTaskOrchestrator(bar, len(batch), ctx.Config.MaxConcurrentFileOperations)

		for _, candidate := range batch {
			orchestrator.StartTask()
			go ctx.readCandidate(orchestrator, candidate, &results, summary)
		}

		orchestrator.WaitForTasks()

		var events []ChangeEvent

		err := ctx.DB.Transaction(func(tx *gorm.DB) error {
			for _, result := range results {
				event, err := upsertScanResult(tx, result, summary)

				if err != nil {
					return err
				}

				events = append(events, event)
			}

			return nil
		})

		if err != nil {
			return err
		}

		// Only announce after the batch transaction is durable
		for _, event := range events {
			ctx.emitter().Emit(event)
		}
	}

	return nil
}

func (ctx *Context) readCandidate(orchestrator *utils.TaskOrchestrator, candidate scanCandidate, results *[]scanResult, summary *IndexSummary) {
	defer orchestrator.FinishTask()

	// The file may have vanished between the walk and this worker
	if !IsFile(candidate.absolutePath) {
		orchestrator.Lock()
		log.Printf("Ignoring not-found file \"%s\"", candidate.absolutePath)
		summary.Errors++
		orchestrator.Unlock()
		return
	}

	hash, err := crypto.HashFile(candidate.absolutePath)

	if err != nil {
		orchestrator.Lock()
		log.Printf("Could not hash file \"%s\": %v", candidate.absolutePath, err)
		summary.Errors++
		orchestrator.Unlock()
		return
	}

	// Hash-identical content needs no write and must emit no event
	if candidate.fileID != 0 && hash == candidate.priorHash {
		orchestrator.Lock()
		summary.Skipped++
		orchestrator.Unlock()
		return
	}

	result := scanResult{scanCandidate: candidate, contentHash: hash}

	if width, height, err := metadata.Dimensions(candidate.absolutePath); err == nil {
		result.width = &width
		result.height = &height
	}

	if text := metadata.ReadEmbeddedText(candidate.absolutePath, ctx.Config.MergeSidecars); text != "" {
		result.rawMetadata = &text
	}

	orchestrator.Lock()
	*results = append(*results, result)
	orchestrator.Unlock()
}

func upsertScanResult(tx *gorm.DB, result scanResult, summary *IndexSummary) (ChangeEvent, error) {
	now := time.Now().UTC()

	if result.fileID == 0 {
		file := models.File{
			Path:        result.absolutePath,
			ContentHash: result.contentHash,
			Size:        result.size,
			ModTime:     result.modTime,
			CreateTime:  result.createTime,
			Width:       result.width,
			Height:      result.height,
			RawMetadata: result.rawMetadata,
			NoMetadata:  result.rawMetadata == nil,
			LastScanned: now,
		}

		if createResult := tx.Create(&file); createResult.Error != nil {
			return ChangeEvent{}, createResult.Error
		}

		summary.New++
		return changeEventForFile(file.ID, result), nil
	}

	updates := map[string]any{
		"content_hash": result.contentHash,
		"size":         result.size,
		"mod_time":     result.modTime,
		"create_time":  result.createTime,
		"width":        result.width,
		"height":       result.height,
		"raw_metadata": result.rawMetadata,
		"no_metadata":  result.rawMetadata == nil,
		"last_scanned": now,
	}

	if updateResult := tx.Model(&models.File{}).Where("id = ?", result.fileID).Updates(updates); updateResult.Error != nil {
		return ChangeEvent{}, updateResult.Error
	}

	summary.Updated++
	return changeEventForFile(result.fileID, result), nil
}

func changeEventForFile(fileID uint, result scanResult) ChangeEvent {
	rawMetadata := ""

	if result.rawMetadata != nil {
		rawMetadata = *result.rawMetadata
	}

	return ChangeEvent{
		FileID:     fileID,
		Path:       result.absolutePath,
		SearchText: buildSearchText(result.absolutePath, rawMetadata, "", "", "", ""),
	}
}

// pruneMissingFiles removes catalog rows for files that no longer exist on
// disk and were not seen during the walk.
func (ctx *Context) pruneMissingFiles(known map[string]knownFile, seen map[string]bool, summary *IndexSummary) error {
	var missingIDs []uint

	for path, file := range known {
		if !seen[path] && !IsFile(path) {
			missingIDs = append(missingIDs, file.ID)
		}
	}

	if len(missingIDs) == 0 {
		return nil
	}

	batchSize := int(ctx.Config.BatchSize)

	if batchSize < 1 {
		batchSize = 1
	}

	for start := 0; start < len(missingIDs); start += batchSize {
		end := start + batchSize

		if end > len(missingIDs) {
			end = len(missingIDs)
		}

		chunk := missingIDs[start:end]

		err := ctx.DB.Transaction(func(tx *gorm.DB) error {
			return deleteFileRows(tx, chunk)
		})

		if err != nil {
			return err
		}

		summary.Pruned += int64(len(chunk))
	}

	return nil
}

// deleteFileRows removes file rows and their dependents. The explicit child
// deletes keep the cascade honest on SQLite builds without foreign keys on.
func deleteFileRows(tx *gorm.DB, fileIDs []uint) error {
	if result := tx.Where("file_id IN ?", fileIDs).Delete(&models.AnnotationUsage{}); result.Error != nil {
		return result.Error
	}

	if result := tx.Where("file_id IN ?", fileIDs).Delete(&models.Parameters{}); result.Error != nil {
		return result.Error
	}

	result := tx.Where("id IN ?", fileIDs).Delete(&models.File{})
	return result.Error
}

func batchCount(total int64, batchSize int64) int64 {
	if batchSize < 1 {
		batchSize = 1
	}

	return (total + batchSize - 1) / batchSize
}
