// Package metadata locates embedded generation parameter text and pixel
// dimensions inside image files.
package metadata

import (
	"image"
	"os"
	"path"
	"strings"

	// Dimension support for formats the standard library does not register
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	_ "image/jpeg"
	_ "image/png"
)

// pngTextKeys is the priority order for PNG text chunk keywords. "parameters"
// is where webui writes the block; the others are fallbacks some tools use.
var pngTextKeys = []string{"parameters", "Description", "Comment"}

// ReadEmbeddedText resolves the raw generation text for an image following
// the source priority: embedded text chunks, then format descriptive fields,
// then (only when nothing is embedded and merging is enabled) a sidecar text
// file next to the image. Returns "" when no source exists.
func ReadEmbeddedText(filePath string, mergeSidecars bool) string {
	text := embeddedText(filePath)

	if text == "" && mergeSidecars {
		text = sidecarText(filePath)
	}

	return text
}

func embeddedText(filePath string) string {
	switch strings.ToLower(path.Ext(filePath)) {
	case ".png":
		chunks, err := ReadPNGTextChunks(filePath)

		if err != nil {
			return ""
		}

		for _, key := range pngTextKeys {
			if text := strings.TrimSpace(chunks[key]); text != "" {
				return text
			}
		}

		return ""

	case ".jpg", ".jpeg", ".tiff", ".webp":
		return readExifText(filePath)
	}

	return ""
}

func sidecarText(filePath string) string {
	extension := path.Ext(filePath)
	sidecarPath := strings.TrimSuffix(filePath, extension) + ".txt"
	data, err := os.ReadFile(path.Clean(sidecarPath))

	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(data))
}

// Dimensions decodes just the image header for pixel width and height.
func Dimensions(filePath string) (int, int, error) {
	file, err := os.Open(path.Clean(filePath))

	if err != nil {
		return 0, 0, err
	}

	defer file.Close()

	config, _, err := image.DecodeConfig(file)

	if err != nil {
		return 0, 0, err
	}

	return config.Width, config.Height, nil
}
