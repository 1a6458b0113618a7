package container

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Manifest is the offset/size index appended between the project document
// and the trailer. All offsets are absolute file offsets; player_size is
// recorded so tooling can recover appended-region-relative positions.
//
// Encoding is JSON. The trailer's fixed-width length field locates the
// manifest without a forward scan, so the encoding itself does not need
// to be self-delimiting.
type Manifest struct {
	FormatVersion int    `json:"format_version"`
	PlayerSize    uint64 `json:"player_size"`

	DocumentOffset uint64 `json:"document_offset"`
	DocumentSize   uint64 `json:"document_size"`
	// DocumentChecksum is the hex BLAKE3-256 of the document bytes.
	DocumentChecksum string `json:"document_checksum,omitempty"`

	Media []MediaEntry `json:"media"`

	Icon *IconRef `json:"icon,omitempty"`
}

// MediaEntry locates one media blob inside the container. IDs are unique
// within a manifest; ranges never overlap and the whole media region
// precedes the document region.
type MediaEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	MIMEType string `json:"mime_type"`
	Offset   uint64 `json:"offset"`
	Size     uint64 `json:"size"`
	// Checksum is the hex BLAKE3-256 of the blob, verified on read.
	Checksum string `json:"checksum,omitempty"`
}

// IconRef locates the optional app icon blob.
type IconRef struct {
	Offset uint64 `json:"offset"`
	Size   uint64 `json:"size"`
}

// Entry returns the media entry for id, if present.
func (m *Manifest) Entry(id string) (MediaEntry, bool) {
	for _, e := range m.Media {
		if e.ID == id {
			return e, true
		}
	}
	return MediaEntry{}, false
}

// Encode serializes the manifest. The manifest is validated first so a
// writer bug cannot produce a container that its own reader rejects.
func (m *Manifest) Encode() ([]byte, error) {
	if err := m.Validate(0); err != nil {
		return nil, err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return data, nil
}

// DecodeManifest parses and validates manifest bytes. containerSize, when
// non-zero, is the physical file size; every range the manifest declares
// must fall inside it. All failures wrap ErrCorruptContainer: by the time
// a manifest is being decoded the trailer magic has already matched, so a
// bad manifest is corruption, not a format mismatch.
func DecodeManifest(data []byte, containerSize uint64) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: manifest undecodable: %v", ErrCorruptContainer, err)
	}
	if err := m.Validate(containerSize); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptContainer, err)
	}
	return &m, nil
}

// Validate checks internal consistency. containerSize of zero skips the
// physical-bounds check (used by Encode, where the final size is not yet
// known).
func (m *Manifest) Validate(containerSize uint64) error {
	if m.FormatVersion != FormatVersion {
		return fmt.Errorf("unsupported format version %d", m.FormatVersion)
	}

	docEnd, ok := rangeEnd(m.DocumentOffset, m.DocumentSize)
	if !ok {
		return fmt.Errorf("document range overflows")
	}
	if m.DocumentOffset < m.PlayerSize {
		return fmt.Errorf("document range begins inside the player image")
	}
	if containerSize != 0 && docEnd > containerSize {
		return fmt.Errorf("document range [%d,%d) exceeds container size %d",
			m.DocumentOffset, docEnd, containerSize)
	}

	seen := make(map[string]struct{}, len(m.Media))
	ranges := make([]MediaEntry, 0, len(m.Media)+1)
	for _, e := range m.Media {
		if e.ID == "" {
			return fmt.Errorf("media entry with empty id")
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateMediaID, e.ID)
		}
		seen[e.ID] = struct{}{}

		end, ok := rangeEnd(e.Offset, e.Size)
		if !ok {
			return fmt.Errorf("media %q range overflows", e.ID)
		}
		if e.Offset < m.PlayerSize {
			return fmt.Errorf("media %q range begins inside the player image", e.ID)
		}
		if end > m.DocumentOffset {
			return fmt.Errorf("media %q range [%d,%d) crosses the document region at %d",
				e.ID, e.Offset, end, m.DocumentOffset)
		}
		ranges = append(ranges, e)
	}

	if m.Icon != nil {
		end, ok := rangeEnd(m.Icon.Offset, m.Icon.Size)
		if !ok {
			return fmt.Errorf("icon range overflows")
		}
		if m.Icon.Offset < m.PlayerSize || end > m.DocumentOffset {
			return fmt.Errorf("icon range [%d,%d) outside the media region", m.Icon.Offset, end)
		}
		ranges = append(ranges, MediaEntry{ID: "\x00icon", Offset: m.Icon.Offset, Size: m.Icon.Size})
	}

	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Offset < ranges[j].Offset })
	for i := 1; i < len(ranges); i++ {
		prev, cur := ranges[i-1], ranges[i]
		if prev.Offset+prev.Size > cur.Offset {
			return fmt.Errorf("ranges overlap: [%d,%d) and [%d,%d)",
				prev.Offset, prev.Offset+prev.Size, cur.Offset, cur.Offset+cur.Size)
		}
	}

	return nil
}

// rangeEnd returns offset+size, reporting false on uint64 overflow.
func rangeEnd(offset, size uint64) (uint64, bool) {
	if size > math.MaxUint64-offset {
		return 0, false
	}
	return offset + size, true
}
