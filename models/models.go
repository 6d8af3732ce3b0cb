package models

import "time"

// File is the catalog row for one image on disk. Created on first sighting,
// updated on re-scan, deleted only by the duplicate resolver or the prune
// pass when the underlying file is gone.
type File struct {
	ID                uint   `gorm:"primarykey"`
	Path              string `gorm:"uniqueIndex"`
	ContentHash       string `gorm:"index"`
	Size              int64
	ModTime           int64
	CreateTime        int64
	Width             *int
	Height            *int
	RawMetadata       *string
	LastExtractedHash *string `gorm:"index"`
	LastExtractedAt   *time.Time
	NoMetadata        bool
	HasAnnotations    bool
	PromptTruncated   bool
	ExtractionVersion int
	LastScanned       time.Time

	Parameters  *Parameters       `gorm:"foreignKey:FileID;constraint:OnDelete:CASCADE"`
	Annotations []AnnotationUsage `gorm:"foreignKey:FileID;constraint:OnDelete:CASCADE"`
}

// Parameters holds the normalized generation parameters for a file. The row
// is replaced wholesale on re-extraction, never patched field by field.
type Parameters struct {
	FileID            uint `gorm:"primarykey"`
	ModelName         *string
	ModelHashShort    *string
	VAE               *string
	VAEHash           *string
	RefinerModel      *string
	RefinerSwitchAt   *float64
	Steps             *int64
	Sampler           *string
	Scheduler         *string
	CfgScale          *float64
	Seed              *int64
	Subseed           *int64
	SubseedStrength   *float64
	ClipSkip          *int64
	DenoisingStrength *float64
	Tiling            *int64
	FaceRestoration   *string
	Width             *int64
	Height            *int64
	SizeRaw           *string
	HiresUpscaler     *string
	HiresSteps        *int64
	HiresDenoising    *float64
	RawPositive       string
	RawNegative       string
	CleanPositive     string
	CleanNegative     string
	AnnotationCount   int
	SemanticHash      string `gorm:"index"`
	ExtractionTimeMs  int64
	CreatedAt         time.Time
}

// AnnotationUsage records one inline adapter reference found in a prompt.
// The full set for a file is replaced together.
type AnnotationUsage struct {
	ID       uint   `gorm:"primarykey"`
	FileID   uint   `gorm:"uniqueIndex:idx_annotation_usage;index"`
	Name     string `gorm:"uniqueIndex:idx_annotation_usage;index"`
	Weight   float64
	Context  string `gorm:"uniqueIndex:idx_annotation_usage"`
	Position int    `gorm:"uniqueIndex:idx_annotation_usage"`
}
