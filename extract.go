package main

import (
	"log"
	"time"
	"unicode/utf8"

	"github.com/schollz/progressbar/v3"
	"gorm.io/gorm"

	"sd-index/models"
	"sd-index/parse"
	"sd-index/utils"
)

// Prompt fields beyond this many bytes are truncated and flagged rather than
// rejected.
const maxPromptBytes = 16 * 1024

const extractionVersion = 1

type ExtractSummary struct {
	Processed  int64
	Written    int64
	Skipped    int64
	NoMetadata int64
	Failed     int64
}

type extractionResult struct {
	fileID       uint
	path         string
	record       *parse.Record
	semanticHash string
	truncated    bool
	durationMs   int64
	noMetadata   bool
}

// ExtractFiles runs a standalone extraction pass over every catalogued file
// that carries raw metadata.
func (ctx *Context) ExtractFiles() (*ExtractSummary, error) {
	err := ctx.beginRun("extract")

	if err != nil {
		return nil, err
	}

	defer ctx.endRun()
	return ctx.extractFiles()
}

func (ctx *Context) extractFiles() (*ExtractSummary, error) {
	total, batches, err := ctx.GetBatchesOfIDs(QueryFileIDsToExtract())

	if err != nil {
		return nil, err
	}

	summary := &ExtractSummary{}

	if total == 0 {
		return summary, nil
	}

	utils.ConsoleAndLogPrintf("Extracting metadata from %s in %s", utils.Pluralize("file", total), utils.Pluralize("batch", int64(len(batches))))

	bar := progressbar.Default(total)

	for _, batch := range batches {
		var files []models.File
		result := ctx.DB.Select("id", "path", "raw_metadata", "last_extracted_hash").Where("id IN ?", batch).Order("id").Find(&files)

		if result.Error != nil {
			return summary, result.Error
		}

		var results []extractionResult
		orchestrator := utils.NewTaskOrchestrator(bar, len(files), ctx.Config.MaxConcurrentFileOperations)

		for _, file := range files {
			orchestrator.StartTask()
			go parseFile(orchestrator, file, &results, summary)
		}

		orchestrator.WaitForTasks()

		events, err := ctx.commitExtractionBatch(results)

		if err != nil {
			return summary, err
		}

		for _, event := range events {
			ctx.emitter().Emit(event)
		}
	}

	return summary, nil
}

// parseFile derives and parses one file's raw metadata. Pure per-file work,
// safe to run across the worker pool.
func parseFile(orchestrator *utils.TaskOrchestrator, file models.File, results *[]extractionResult, summary *ExtractSummary) {
	defer orchestrator.FinishTask()

	rawMetadata := ""

	if file.RawMetadata != nil {
		rawMetadata = *file.RawMetadata
	}

	started := time.Now()
	result := extractionResult{fileID: file.ID, path: file.Path}
	rawText := parse.DeriveRawText(rawMetadata)
	record := parse.ParseMetadataBlock(rawText)

	orchestrator.Lock()
	defer orchestrator.Unlock()

	summary.Processed++

	if record == nil {
		result.noMetadata = true
		summary.NoMetadata++
		*results = append(*results, result)
		return
	}

	result.truncated = truncatePrompts(record)
	result.record = record
	result.semanticHash = record.SemanticHash()
	result.durationMs = time.Since(started).Milliseconds()

	// Idempotence: an unchanged semantic hash means zero writes
	if file.LastExtractedHash != nil && *file.LastExtractedHash == result.semanticHash {
		summary.Skipped++
		return
	}

	summary.Written++
	*results = append(*results, result)
}

// truncatePrompts bounds each prompt field, reporting whether anything was
// cut. Truncation happens before hashing so re-extraction stays idempotent.
func truncatePrompts(record *parse.Record) bool {
	truncated := false

	for _, prompt := range []*string{&record.RawPositive, &record.RawNegative, &record.CleanPositive, &record.CleanNegative} {
		if len(*prompt) <= maxPromptBytes {
			continue
		}

		cut := maxPromptBytes

		// Never cut a multi-byte rune in half
		for cut > 0 && !utf8.RuneStart((*prompt)[cut]) {
			cut--
		}

		*prompt = (*prompt)[:cut]
		truncated = true
	}

	return truncated
}

// commitExtractionBatch writes one batch in a single transaction. If the
// batch fails it is retried row-by-row so one bad row cannot sink its
// neighbours, matching the store-constraint error contract.
func (ctx *Context) commitExtractionBatch(results []extractionResult) ([]ChangeEvent, error) {
	var events []ChangeEvent

	err := ctx.DB.Transaction(func(tx *gorm.DB) error {
		for _, result := range results {
			event, err := applyExtraction(tx, result)

			if err != nil {
				return err
			}

			if event != nil {
				events = append(events, *event)
			}
		}

		return nil
	})

	if err == nil {
		return events, nil
	}

	log.Printf("Extraction batch failed (%v). Retrying row-by-row...", err)
	events = events[:0]

	for _, result := range results {
		var event *ChangeEvent

		rowErr := ctx.DB.Transaction(func(tx *gorm.DB) error {
			var applyErr error
			event, applyErr = applyExtraction(tx, result)
			return applyErr
		})

		if rowErr != nil {
			log.Printf("Skipping extraction for file %d (%s): %v", result.fileID, result.path, rowErr)
			continue
		}

		if event != nil {
			events = append(events, *event)
		}
	}

	return events, nil
}

// applyExtraction replaces one file's parameter row and annotation set and
// stamps the new semantic hash, all inside the caller's transaction. The
// delete-then-insert of annotations shares the transaction with the
// parameter replace so no stale rows are ever observable.
func applyExtraction(tx *gorm.DB, result extractionResult) (*ChangeEvent, error) {
	if result.noMetadata {
		updateResult := tx.Model(&models.File{}).Where("id = ?", result.fileID).Update("no_metadata", true)
		return nil, updateResult.Error
	}

	record := result.record

	if deleteResult := tx.Where("file_id = ?", result.fileID).Delete(&models.Parameters{}); deleteResult.Error != nil {
		return nil, deleteResult.Error
	}

	parameters := parametersFromRecord(result.fileID, record, result.semanticHash, result.durationMs)

	if createResult := tx.Create(parameters); createResult.Error != nil {
		return nil, createResult.Error
	}

	if deleteResult := tx.Where("file_id = ?", result.fileID).Delete(&models.AnnotationUsage{}); deleteResult.Error != nil {
		return nil, deleteResult.Error
	}

	if len(record.Annotations) > 0 {
		usages := make([]models.AnnotationUsage, 0, len(record.Annotations))

		for _, annotation := range record.Annotations {
			usages = append(usages, models.AnnotationUsage{
				FileID:   result.fileID,
				Name:     annotation.Name,
				Weight:   annotation.Weight,
				Context:  annotation.Context,
				Position: annotation.Position,
			})
		}

		if createResult := tx.Create(&usages); createResult.Error != nil {
			return nil, createResult.Error
		}
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"last_extracted_hash": result.semanticHash,
		"last_extracted_at":   now,
		"no_metadata":         false,
		"has_annotations":     len(record.Annotations) > 0,
		"prompt_truncated":    result.truncated,
		"extraction_version":  extractionVersion,
	}

	if updateResult := tx.Model(&models.File{}).Where("id = ?", result.fileID).Updates(updates); updateResult.Error != nil {
		return nil, updateResult.Error
	}

	modelName := ""

	if record.ModelName != nil {
		modelName = *record.ModelName
	}

	return &ChangeEvent{
		FileID:     result.fileID,
		Path:       result.path,
		SearchText: buildSearchText(result.path, record.RawPositive, record.RawNegative, record.CleanPositive, record.CleanNegative, modelName),
	}, nil
}

func parametersFromRecord(fileID uint, record *parse.Record, semanticHash string, durationMs int64) *models.Parameters {
	return &models.Parameters{
		FileID:            fileID,
		ModelName:         record.ModelName,
		ModelHashShort:    record.ModelHashShort,
		VAE:               record.VAE,
		VAEHash:           record.VAEHash,
		RefinerModel:      record.RefinerModel,
		RefinerSwitchAt:   record.RefinerSwitchAt,
		Steps:             record.Steps,
		Sampler:           record.Sampler,
		Scheduler:         record.Scheduler,
		CfgScale:          record.CfgScale,
		Seed:              record.Seed,
		Subseed:           record.Subseed,
		SubseedStrength:   record.SubseedStrength,
		ClipSkip:          record.ClipSkip,
		DenoisingStrength: record.DenoisingStrength,
		Tiling:            record.Tiling,
		FaceRestoration:   record.FaceRestoration,
		Width:             record.Width,
		Height:            record.Height,
		SizeRaw:           record.SizeRaw,
		HiresUpscaler:     record.HiresUpscaler,
		HiresSteps:        record.HiresSteps,
		HiresDenoising:    record.HiresDenoising,
		RawPositive:       record.RawPositive,
		RawNegative:       record.RawNegative,
		CleanPositive:     record.CleanPositive,
		CleanNegative:     record.CleanNegative,
		AnnotationCount:   len(record.Annotations),
		SemanticHash:      semanticHash,
		ExtractionTimeMs:  durationMs,
	}
}
