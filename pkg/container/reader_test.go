package container

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildCorruptible builds a small valid container and returns its bytes
// plus the path it was written to.
func buildCorruptible(t *testing.T) ([]byte, string) {
	t.Helper()
	playerPath := writeFakePlayer(t, 256)
	outputPath := filepath.Join(t.TempDir(), "artifact")
	_, err := Build(context.Background(), BuildOptions{
		PlayerPath: playerPath,
		OutputPath: outputPath,
		Document:   []byte(`{"title":"corruption test"}`),
		Media: []MediaItem{
			// Large enough that a truncated payload cannot hide behind
			// the manifest's own footprint.
			{ID: "m1", MIMEType: "video/mp4", Source: BytesSource(bytes.Repeat([]byte("media-bytes"), 400))},
		},
	})
	require.NoError(t, err)
	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	return data, outputPath
}

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestOpenNotAContainer(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{name: "empty_file", data: nil},
		{name: "shorter_than_trailer", data: []byte("tiny")},
		{name: "plain_binary", data: make([]byte, 4096)},
		{name: "json_document", data: []byte(`{"title":"v1 project","embeddedMedia":[]}`)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := OpenContainer(writeTemp(t, tc.data))
			require.ErrorIs(t, err, ErrNotAContainer)
			require.NotErrorIs(t, err, ErrCorruptContainer)
		})
	}
}

func TestOpenCorruptContainer(t *testing.T) {
	testCases := []struct {
		name    string
		corrupt func([]byte) []byte
	}{
		{
			// Zero out the manifest length field.
			name: "zero_length_field",
			corrupt: func(data []byte) []byte {
				for i := len(data) - TrailerFixedSize; i < len(data)-MagicSize; i++ {
					data[i] = 0
				}
				return data
			},
		},
		{
			// Claim a manifest longer than the file.
			name: "oversized_length_field",
			corrupt: func(data []byte) []byte {
				binary.LittleEndian.PutUint64(data[len(data)-TrailerFixedSize:], 1<<40)
				return data
			},
		},
		{
			// Flip one byte inside the manifest region (the opening
			// brace of the manifest JSON).
			name: "manifest_byte_flipped",
			corrupt: func(data []byte) []byte {
				manifestLen := binary.LittleEndian.Uint64(data[len(data)-TrailerFixedSize:])
				manifestStart := len(data) - TrailerFixedSize - int(manifestLen)
				data[manifestStart] ^= 0xFF
				return data
			},
		},
		{
			// Truncate the file mid-payload, then re-append the
			// trailer so the magic still matches but every offset
			// points past EOF.
			name: "offsets_past_eof",
			corrupt: func(data []byte) []byte {
				manifestLen := binary.LittleEndian.Uint64(data[len(data)-TrailerFixedSize:])
				trailer := data[len(data)-TrailerFixedSize-int(manifestLen):]
				return append(data[:64:64], trailer...)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, _ := buildCorruptible(t)
			path := writeTemp(t, tc.corrupt(data))
			_, err := OpenContainer(path)
			require.ErrorIs(t, err, ErrCorruptContainer)
		})
	}
}

func TestOpenDetectsChecksumMismatch(t *testing.T) {
	data, _ := buildCorruptible(t)

	// Flip one byte inside the media blob: the trailer and manifest stay
	// intact, so the open succeeds, but reading the blob must fail.
	c, err := OpenContainer(writeTemp(t, data))
	require.NoError(t, err)
	entry, ok := c.MediaInfo("m1")
	require.True(t, ok)
	c.Close()

	data[entry.Offset] ^= 0xFF
	c, err = OpenContainer(writeTemp(t, data))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Media("m1")
	require.ErrorIs(t, err, ErrCorruptContainer)
	require.ErrorContains(t, err, "checksum")
}

func TestOpenMissingFile(t *testing.T) {
	_, err := OpenContainer(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotAContainer)
}
