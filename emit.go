package main

import (
	"log"
	"strings"
)

// ChangeEvent announces one committed file/parameter change to the external
// search layer. SearchText concatenates everything that layer indexes.
type ChangeEvent struct {
	FileID     uint
	Path       string
	SearchText string
}

// ChangeEmitter receives exactly one event per committed change. Events are
// emitted only after the owning transaction commits; files whose semantic
// hash did not change emit nothing. The consumer owns idempotent application.
type ChangeEmitter interface {
	Emit(event ChangeEvent)
}

// LogEmitter is the default boundary implementation: it just records the
// event. The search layer replaces it with its own consumer.
type LogEmitter struct{}

func (LogEmitter) Emit(event ChangeEvent) {
	log.Printf("index change: file %d (%s)", event.FileID, event.Path)
}

func buildSearchText(path string, rawPositive string, rawNegative string, cleanPositive string, cleanNegative string, modelName string) string {
	parts := []string{path, rawPositive, rawNegative, cleanPositive, cleanNegative, modelName}
	var kept []string

	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			kept = append(kept, part)
		}
	}

	return strings.Join(kept, "\n")
}
