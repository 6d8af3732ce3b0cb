package main

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/png"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/require"

	"sd-index/config"
)

func testConfig(t *testing.T) *config.Config {
	tempPath, err := os.MkdirTemp("", "sd-index-")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = os.RemoveAll(tempPath)
	})

	return &config.Config{
		DBPath:                      path.Join(tempPath, "db.db"),
		BatchSize:                   5,
		MaxConcurrentFileOperations: 2,
		DisableExtraction:           true,
	}
}

func testContext(t *testing.T) *Context {
	c := testConfig(t)

	return &Context{
		Config: c,
		DB:     initDb(c),
	}
}

func createTempImageDir(t *testing.T) string {
	tempPath, err := os.MkdirTemp("", "sd-index-images-")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = os.RemoveAll(tempPath)
	})

	return tempPath
}

// writeImageWithParams writes a small valid PNG carrying the given generation
// parameter block in a "parameters" text chunk.
func writeImageWithParams(t *testing.T, filePath string, params string) {
	var buffer bytes.Buffer
	err := png.Encode(&buffer, image.NewRGBA(image.Rect(0, 0, 1, 1)))
	require.NoError(t, err)

	encoded := buffer.Bytes()

	// Signature (8) + IHDR chunk (4 length + 4 type + 13 data + 4 CRC)
	const headerEnd = 33
	var spliced []byte
	spliced = append(spliced, encoded[:headerEnd]...)

	if params != "" {
		data := append([]byte("parameters"), 0)
		data = append(data, params...)

		chunk := binary.BigEndian.AppendUint32(nil, uint32(len(data)))
		chunk = append(chunk, "tEXt"...)
		chunk = append(chunk, data...)

		checksum := crc32.NewIEEE()
		checksum.Write([]byte("tEXt"))
		checksum.Write(data)
		chunk = binary.BigEndian.AppendUint32(chunk, checksum.Sum32())

		spliced = append(spliced, chunk...)
	}

	spliced = append(spliced, encoded[headerEnd:]...)
	require.NoError(t, os.WriteFile(filePath, spliced, 0600))
}

// recordingEmitter captures change events for assertions.
type recordingEmitter struct {
	events []ChangeEvent
}

func (emitter *recordingEmitter) Emit(event ChangeEvent) {
	emitter.events = append(emitter.events, event)
}
