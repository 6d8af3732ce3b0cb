package metadata

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

var ErrNotPNG = errors.New("not a png file")

// Text chunks larger than this are ignored rather than read into memory.
// Generation parameter blocks are a few KiB at most.
const maxTextChunkSize = 1 << 20

// ReadPNGTextChunks returns the textual chunks of a PNG file keyed by
// keyword. tEXt, zTXt and iTXt are supported; the standard library decoder
// discards all three, which is why this exists. Later chunks with a repeated
// keyword win.
func ReadPNGTextChunks(filePath string) (map[string]string, error) {
	file, err := os.Open(path.Clean(filePath))

	if err != nil {
		return nil, err
	}

	defer file.Close()

	signature := make([]byte, len(pngSignature))

	if _, err = io.ReadFull(file, signature); err != nil {
		return nil, err
	}

	if !bytes.Equal(signature, pngSignature) {
		return nil, ErrNotPNG
	}

	texts := map[string]string{}
	header := make([]byte, 8)

	for {
		if _, err = io.ReadFull(file, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return texts, nil
			}

			return nil, err
		}

		length := binary.BigEndian.Uint32(header[:4])
		chunkType := string(header[4:8])

		if chunkType == "IEND" {
			return texts, nil
		}

		isText := chunkType == "tEXt" || chunkType == "zTXt" || chunkType == "iTXt"

		if !isText || length > maxTextChunkSize {
			// Skip data plus CRC
			if _, err = file.Seek(int64(length)+4, io.SeekCurrent); err != nil {
				return nil, err
			}

			continue
		}

		data := make([]byte, length)

		if _, err = io.ReadFull(file, data); err != nil {
			return nil, err
		}

		// CRC is not verified; a corrupt text chunk yields garbage text,
		// which the parser treats the same as no metadata
		if _, err = file.Seek(4, io.SeekCurrent); err != nil {
			return nil, err
		}

		keyword, text, decodeErr := decodeTextChunk(chunkType, data)

		if decodeErr == nil && keyword != "" {
			texts[keyword] = text
		}
	}
}

func decodeTextChunk(chunkType string, data []byte) (string, string, error) {
	separator := bytes.IndexByte(data, 0)

	if separator < 0 {
		return "", "", errors.New("missing keyword separator")
	}

	keyword := string(data[:separator])
	rest := data[separator+1:]

	switch chunkType {
	case "tEXt":
		return keyword, string(rest), nil

	case "zTXt":
		if len(rest) < 1 {
			return "", "", errors.New("truncated zTXt chunk")
		}

		// rest[0] is the compression method; zlib is the only defined one
		text, err := inflate(rest[1:])
		return keyword, text, err

	case "iTXt":
		if len(rest) < 2 {
			return "", "", errors.New("truncated iTXt chunk")
		}

		compressed := rest[0] == 1
		rest = rest[2:]

		// Skip language tag and translated keyword
		for i := 0; i < 2; i++ {
			next := bytes.IndexByte(rest, 0)

			if next < 0 {
				return "", "", errors.New("truncated iTXt chunk")
			}

			rest = rest[next+1:]
		}

		if compressed {
			text, err := inflate(rest)
			return keyword, text, err
		}

		return keyword, string(rest), nil
	}

	return "", "", errors.New("not a text chunk")
}

func inflate(data []byte) (string, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))

	if err != nil {
		return "", err
	}

	defer reader.Close()

	inflated, err := io.ReadAll(io.LimitReader(reader, maxTextChunkSize))

	if err != nil {
		return "", err
	}

	return string(inflated), nil
}
