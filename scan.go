package main

import (
	"io/fs"
	"log"
	"path/filepath"
	"strings"

	"sd-index/utils"
)

// imageExtensions is the fixed allowlist of catalogued formats.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".bmp":  true,
	".tiff": true,
}

func IsImagePath(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// ScanImages walks the tree under rootPath and calls visit with the absolute
// path of every recognized image file. Unreadable entries are logged and
// skipped; a single bad path never fails the walk. The walk has no side
// effects and is safe to re-run.
func (ctx *Context) ScanImages(rootPath string, visit func(absolutePath string, entry fs.DirEntry) error) error {
	absoluteRootPath, err := filepath.Abs(rootPath)

	if err != nil {
		return ErrCouldNotResolvePath
	}

	if !IsDir(absoluteRootPath) {
		return ErrCouldNotResolvePath
	}

	return filepath.WalkDir(absoluteRootPath, func(thisPath string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Printf("Skipping unreadable path \"%s\": %v", thisPath, err)

			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if d.IsDir() {
			if thisPath != absoluteRootPath && utils.IsInArray(d.Name(), ctx.Config.FolderNamesToIgnore) {
				return filepath.SkipDir
			}

			return nil
		}

		if utils.IsInArray(d.Name(), ctx.Config.FileNamesToIgnore) {
			return nil
		}

		if !IsImagePath(thisPath) {
			return nil
		}

		return visit(thisPath, d)
	})
}
