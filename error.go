package main

import "errors"

var (
	ErrCouldNotResolvePath = errors.New("could not resolve path")
	ErrOperationInProgress = errors.New("another catalog operation is in progress")
	ErrDedupeNotConfirmed  = errors.New("duplicate resolution requires explicit confirmation")
	ErrCatalogCorrupt      = errors.New("catalog failed its integrity check")
)
