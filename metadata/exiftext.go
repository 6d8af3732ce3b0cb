package metadata

import (
	"bytes"
	"os"
	"path"
	"strings"
	"unicode/utf16"

	"github.com/rwcarlsen/goexif/exif"
)

// readExifText pulls generation text out of JPEG/TIFF EXIF data, trying
// UserComment first (where webui writes it) and ImageDescription second.
// A file without EXIF is simply a file without metadata, not an error.
func readExifText(filePath string) string {
	file, err := os.Open(path.Clean(filePath))

	if err != nil {
		return ""
	}

	defer file.Close()

	decoded, err := exif.Decode(file)

	if err != nil {
		return ""
	}

	for _, field := range []exif.FieldName{exif.UserComment, exif.ImageDescription} {
		tag, err := decoded.Get(field)

		if err != nil {
			continue
		}

		if text, err := tag.StringVal(); err == nil {
			if trimmed := strings.TrimSpace(text); trimmed != "" {
				return trimmed
			}
		}

		if text := decodeUserComment(tag.Val); text != "" {
			return text
		}
	}

	return ""
}

// decodeUserComment handles the EXIF UserComment layout: an 8-byte character
// code prefix followed by the payload.
func decodeUserComment(raw []byte) string {
	if len(raw) <= 8 {
		return ""
	}

	prefix := raw[:8]
	payload := raw[8:]

	switch {
	case bytes.HasPrefix(prefix, []byte("ASCII")):
		return strings.TrimSpace(string(bytes.TrimRight(payload, "\x00")))

	case bytes.HasPrefix(prefix, []byte("UNICODE")):
		return strings.TrimSpace(decodeUTF16(payload))
	}

	// Undefined character code: treat as raw bytes if they look like text
	text := strings.TrimSpace(string(bytes.TrimRight(raw, "\x00")))

	if strings.ContainsRune(text, 0) {
		return ""
	}

	return text
}

func decodeUTF16(payload []byte) string {
	if len(payload) < 2 {
		return ""
	}

	// The byte order of EXIF UNICODE comments is not declared; a leading
	// zero byte means the first code unit is big-endian
	bigEndian := payload[0] == 0

	units := make([]uint16, 0, len(payload)/2)

	for i := 0; i+1 < len(payload); i += 2 {
		if bigEndian {
			units = append(units, uint16(payload[i])<<8|uint16(payload[i+1]))
		} else {
			units = append(units, uint16(payload[i+1])<<8|uint16(payload[i]))
		}
	}

	return strings.TrimRight(string(utf16.Decode(units)), "\x00")
}
