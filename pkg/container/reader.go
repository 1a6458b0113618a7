package container

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/zeebo/blake3"
)

// Container is an open read handle on a V2 container. All reads are
// positioned (ReadAt), so a single handle serves concurrent document and
// media reads with no shared cursor. The handle never mutates the file.
type Container struct {
	path     string
	file     *os.File
	size     int64
	manifest *Manifest
	logger   hclog.Logger
}

// OpenContainer opens path and parses its trailer.
//
// A missing or mismatched magic marker yields ErrNotAContainer: the file
// simply is not this format, and the shim falls back to the legacy path.
// A matching magic with an undecodable manifest or out-of-range offsets
// yields an error wrapping ErrCorruptContainer.
func OpenContainer(path string) (*Container, error) {
	return OpenContainerWithLogger(path, hclog.NewNullLogger())
}

// OpenContainerWithLogger is OpenContainer with a custom logger.
func OpenContainerWithLogger(path string, logger hclog.Logger) (*Container, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	c := &Container{path: path, file: file, logger: logger}
	if err := c.parseTrailer(); err != nil {
		file.Close()
		return nil, err
	}
	return c, nil
}

// parseTrailer walks backward from EOF: magic, then the fixed-width
// manifest length, then the manifest itself.
func (c *Container) parseTrailer() error {
	info, err := c.file.Stat()
	if err != nil {
		return err
	}
	c.size = info.Size()

	if c.size < TrailerFixedSize {
		return ErrNotAContainer
	}

	var magic [MagicSize]byte
	if _, err := c.file.ReadAt(magic[:], c.size-MagicSize); err != nil {
		return err
	}
	if !bytes.Equal(magic[:], []byte(MagicMarker)) {
		return ErrNotAContainer
	}

	var lengthField [LengthFieldSize]byte
	if _, err := c.file.ReadAt(lengthField[:], c.size-TrailerFixedSize); err != nil {
		return err
	}
	manifestLen := binary.LittleEndian.Uint64(lengthField[:])
	if manifestLen == 0 || manifestLen > uint64(c.size-TrailerFixedSize) {
		return fmt.Errorf("%w: manifest length %d inconsistent with file size %d",
			ErrCorruptContainer, manifestLen, c.size)
	}

	manifestData := make([]byte, manifestLen)
	manifestOffset := c.size - TrailerFixedSize - int64(manifestLen)
	if _, err := c.file.ReadAt(manifestData, manifestOffset); err != nil {
		return fmt.Errorf("%w: reading manifest: %v", ErrCorruptContainer, err)
	}

	manifest, err := DecodeManifest(manifestData, uint64(c.size))
	if err != nil {
		return err
	}
	c.manifest = manifest

	c.logger.Debug("Parsed container trailer",
		"file_size", c.size, "manifest_size", manifestLen, "media", len(manifest.Media))
	return nil
}

// Close releases the underlying file handle.
func (c *Container) Close() error {
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}

// Manifest returns the decoded manifest. Callers must not mutate it.
func (c *Container) Manifest() *Manifest { return c.manifest }

// Entries lists the media entries in container order.
func (c *Container) Entries() []MediaEntry {
	out := make([]MediaEntry, len(c.manifest.Media))
	copy(out, c.manifest.Media)
	return out
}

// MediaInfo returns the manifest entry for id without reading its bytes.
func (c *Container) MediaInfo(id string) (MediaEntry, bool) {
	return c.manifest.Entry(id)
}

// Document reads the project document bytes in one slice.
func (c *Container) Document() ([]byte, error) {
	data, err := c.readRange(c.manifest.DocumentOffset, c.manifest.DocumentSize)
	if err != nil {
		return nil, err
	}
	if err := verifyChecksum(data, c.manifest.DocumentChecksum); err != nil {
		return nil, fmt.Errorf("%w: document: %v", ErrCorruptContainer, err)
	}
	return data, nil
}

// Media reads one media blob by id. Reads are independent and lazy; the
// handle never loads blobs it was not asked for.
func (c *Container) Media(id string) ([]byte, error) {
	entry, ok := c.manifest.Entry(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMediaNotFound, id)
	}
	data, err := c.readRange(entry.Offset, entry.Size)
	if err != nil {
		return nil, err
	}
	if err := verifyChecksum(data, entry.Checksum); err != nil {
		return nil, fmt.Errorf("%w: media %q: %v", ErrCorruptContainer, id, err)
	}
	return data, nil
}

// Icon reads the app icon bytes, or ErrMediaNotFound if the container
// carries none.
func (c *Container) Icon() ([]byte, error) {
	if c.manifest.Icon == nil {
		return nil, fmt.Errorf("%w: app icon", ErrMediaNotFound)
	}
	return c.readRange(c.manifest.Icon.Offset, c.manifest.Icon.Size)
}

// readRange performs one positioned slice read. Bounds were validated at
// decode time; the recheck here turns a racing truncation into a clean
// error instead of a short read.
func (c *Container) readRange(offset, size uint64) ([]byte, error) {
	end, ok := rangeEnd(offset, size)
	if !ok || end > uint64(c.size) {
		return nil, fmt.Errorf("%w: range [%d,%d) exceeds file size %d",
			ErrCorruptContainer, offset, end, c.size)
	}
	data := make([]byte, size)
	if _, err := c.file.ReadAt(data, int64(offset)); err != nil {
		return nil, fmt.Errorf("read at %d: %w", offset, err)
	}
	return data, nil
}

// verifyChecksum compares data against a hex BLAKE3-256 sum. Manifests
// from older builders may omit checksums; absence is not a failure.
func verifyChecksum(data []byte, want string) error {
	if want == "" {
		return nil
	}
	sum := blake3.Sum256(data)
	if got := hex.EncodeToString(sum[:]); got != want {
		return fmt.Errorf("checksum mismatch: got %s, want %s", got, want)
	}
	return nil
}
