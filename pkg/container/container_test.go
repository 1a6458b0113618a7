package container

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFakePlayer writes size bytes of pseudo-executable content and
// returns its path.
func writeFakePlayer(t *testing.T, size int) string {
	t.Helper()
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "player")
	require.NoError(t, os.WriteFile(path, data, 0o755))
	return path
}

func buildTestContainer(t *testing.T, opts BuildOptions) *BuildResult {
	t.Helper()
	result, err := Build(context.Background(), opts)
	require.NoError(t, err)
	return result
}

func TestBuildAndReadScenario(t *testing.T) {
	const playerSize = 4096

	media := make([]byte, 1000)
	for i := range media {
		media[i] = byte(i)
	}
	// The container treats the document as opaque bytes; 200 of them.
	document := bytes.Repeat([]byte{'d'}, 200)

	playerPath := writeFakePlayer(t, playerSize)
	outputPath := filepath.Join(t.TempDir(), "artifact")

	result := buildTestContainer(t, BuildOptions{
		PlayerPath: playerPath,
		OutputPath: outputPath,
		Document:   document,
		Media: []MediaItem{
			{ID: "m1", Name: "clip.mp4", MIMEType: "video/mp4", Source: BytesSource(media)},
		},
	})

	// Final size = S + media + document + manifest + length field + magic.
	info, err := os.Stat(outputPath)
	require.NoError(t, err)
	require.Equal(t, info.Size(), result.Size)

	var lengthField [LengthFieldSize]byte
	f, err := os.Open(outputPath)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.ReadAt(lengthField[:], info.Size()-TrailerFixedSize)
	require.NoError(t, err)
	manifestLen := int64(binary.LittleEndian.Uint64(lengthField[:]))
	require.Equal(t, int64(playerSize)+1000+200+manifestLen+TrailerFixedSize, info.Size())

	// The player prefix is byte-identical to the original binary.
	prefix := make([]byte, playerSize)
	_, err = f.ReadAt(prefix, 0)
	require.NoError(t, err)
	original, err := os.ReadFile(playerPath)
	require.NoError(t, err)
	require.True(t, bytes.Equal(prefix, original))

	c, err := OpenContainer(outputPath)
	require.NoError(t, err)
	defer c.Close()

	doc, err := c.Document()
	require.NoError(t, err)
	require.Equal(t, document, doc)

	got, err := c.Media("m1")
	require.NoError(t, err)
	require.Equal(t, media, got)

	// Idempotent read: same bytes both times.
	again, err := c.Media("m1")
	require.NoError(t, err)
	require.Equal(t, got, again)

	_, err = c.Media("missing")
	require.ErrorIs(t, err, ErrMediaNotFound)

	entry, ok := c.MediaInfo("m1")
	require.True(t, ok)
	assert.Equal(t, "video/mp4", entry.MIMEType)
	assert.Equal(t, uint64(playerSize), entry.Offset)
	assert.Equal(t, uint64(1000), entry.Size)
}

func TestBuildOffsetDisjointness(t *testing.T) {
	playerPath := writeFakePlayer(t, 512)
	outputPath := filepath.Join(t.TempDir(), "artifact")

	items := []MediaItem{
		{ID: "a", MIMEType: "video/mp4", Source: BytesSource(bytes.Repeat([]byte{1}, 300))},
		{ID: "b", MIMEType: "image/png", Source: BytesSource(bytes.Repeat([]byte{2}, 1))},
		{ID: "c", MIMEType: "image/jpeg", Source: BytesSource(nil)}, // empty blob
		{ID: "d", MIMEType: "audio/mpeg", Source: BytesSource(bytes.Repeat([]byte{4}, 700))},
	}
	result := buildTestContainer(t, BuildOptions{
		PlayerPath: playerPath,
		OutputPath: outputPath,
		Document:   []byte(`{}`),
		Media:      items,
		Icon:       BytesSource([]byte("icon-bytes")),
		Workers:    2,
	})

	m := result.Manifest
	require.Len(t, m.Media, 4)
	// Validate already proves disjointness; assert layout order too.
	require.NoError(t, m.Validate(uint64(result.Size)))
	var prevEnd = m.PlayerSize
	for _, e := range m.Media {
		assert.GreaterOrEqual(t, e.Offset, prevEnd)
		prevEnd = e.Offset + e.Size
	}
	require.NotNil(t, m.Icon)
	assert.GreaterOrEqual(t, m.Icon.Offset, prevEnd)
	assert.LessOrEqual(t, m.Icon.Offset+m.Icon.Size, m.DocumentOffset)

	c, err := OpenContainer(outputPath)
	require.NoError(t, err)
	defer c.Close()

	for _, item := range items {
		got, err := c.Media(item.ID)
		require.NoError(t, err)
		want, _ := readSource(item.Source)
		require.Equal(t, want, got, "media %s", item.ID)
	}

	icon, err := c.Icon()
	require.NoError(t, err)
	require.Equal(t, []byte("icon-bytes"), icon)
}

func TestBuildProgressEvents(t *testing.T) {
	playerPath := writeFakePlayer(t, 64)
	outputPath := filepath.Join(t.TempDir(), "artifact")

	var mu sync.Mutex
	var events []Progress
	buildTestContainer(t, BuildOptions{
		PlayerPath: playerPath,
		OutputPath: outputPath,
		Document:   []byte(`{}`),
		Media: []MediaItem{
			{ID: "a", MIMEType: "video/mp4", Source: BytesSource([]byte("aaa"))},
			{ID: "b", MIMEType: "image/png", Source: BytesSource([]byte("bb"))},
		},
		Progress: func(p Progress) {
			mu.Lock()
			events = append(events, p)
			mu.Unlock()
		},
	})

	var mediaIDs []string
	var stages []string
	for _, e := range events {
		stages = append(stages, e.Stage)
		if e.Stage == "media" {
			mediaIDs = append(mediaIDs, e.MediaID)
		}
	}
	// One notification per media item, in append order, then the
	// document/manifest finalization events.
	assert.Equal(t, []string{"a", "b"}, mediaIDs)
	assert.Equal(t, []string{"media", "media", "document", "manifest", "finalize"}, stages)
}

func TestBuildRejectsDuplicateIDs(t *testing.T) {
	playerPath := writeFakePlayer(t, 64)
	outputPath := filepath.Join(t.TempDir(), "artifact")

	_, err := Build(context.Background(), BuildOptions{
		PlayerPath: playerPath,
		OutputPath: outputPath,
		Document:   []byte(`{}`),
		Media: []MediaItem{
			{ID: "dup", MIMEType: "video/mp4", Source: BytesSource([]byte("first"))},
			{ID: "dup", MIMEType: "video/mp4", Source: BytesSource([]byte("second"))},
		},
	})
	require.ErrorIs(t, err, ErrDuplicateMediaID)

	_, statErr := os.Stat(outputPath)
	require.True(t, os.IsNotExist(statErr))
}

type failingSource struct{}

func (failingSource) Open() (io.ReadCloser, error) { return nil, errors.New("storage offline") }

func TestBuildFailureLeavesNoArtifact(t *testing.T) {
	playerPath := writeFakePlayer(t, 64)
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "artifact")

	_, err := Build(context.Background(), BuildOptions{
		PlayerPath: playerPath,
		OutputPath: outputPath,
		Document:   []byte(`{}`),
		Media: []MediaItem{
			{ID: "ok", MIMEType: "image/png", Source: BytesSource([]byte("fine"))},
			{ID: "broken", MIMEType: "video/mp4", Source: failingSource{}},
		},
	})
	require.ErrorIs(t, err, ErrWriteFailure)
	require.ErrorContains(t, err, "broken")

	// Neither the artifact nor a temp file survives a failed build.
	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	require.Empty(t, entries)
}

func TestBuildEmptyMedia(t *testing.T) {
	playerPath := writeFakePlayer(t, 128)
	outputPath := filepath.Join(t.TempDir(), "artifact")

	buildTestContainer(t, BuildOptions{
		PlayerPath: playerPath,
		OutputPath: outputPath,
		Document:   []byte(`{"pages":[]}`),
	})

	c, err := OpenContainer(outputPath)
	require.NoError(t, err)
	defer c.Close()

	require.Empty(t, c.Entries())
	doc, err := c.Document()
	require.NoError(t, err)
	require.Equal(t, []byte(`{"pages":[]}`), doc)
	_, err = c.Icon()
	require.ErrorIs(t, err, ErrMediaNotFound)
}

func TestConcurrentMediaReads(t *testing.T) {
	playerPath := writeFakePlayer(t, 256)
	outputPath := filepath.Join(t.TempDir(), "artifact")

	blobs := map[string][]byte{}
	var items []MediaItem
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		blob := bytes.Repeat([]byte(id), 4096)
		blobs[id] = blob
		items = append(items, MediaItem{ID: id, MIMEType: "video/mp4", Source: BytesSource(blob)})
	}
	buildTestContainer(t, BuildOptions{
		PlayerPath: playerPath,
		OutputPath: outputPath,
		Document:   []byte(`{}`),
		Media:      items,
	})

	c, err := OpenContainer(outputPath)
	require.NoError(t, err)
	defer c.Close()

	// Positioned reads share one handle with no cursor; hammer it.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		for id, want := range blobs {
			id, want := id, want
			wg.Add(1)
			go func() {
				defer wg.Done()
				got, err := c.Media(id)
				assert.NoError(t, err)
				assert.Equal(t, want, got)
			}()
		}
	}
	wg.Wait()
}
