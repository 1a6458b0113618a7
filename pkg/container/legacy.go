package container

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// The legacy (V1) bundle predates the trailer-indexed container: the
// whole artifact is a single JSON project document whose embeddedMedia
// list inlines every blob as base64 text. No offsets, no manifest. Field
// names are camelCase because the document format is owned by the
// authoring app.

// EmbeddedMedia is one inlined V1 media entry.
type EmbeddedMedia struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	MIMEType   string `json:"mimeType"`
	Base64Text string `json:"base64Text"`
}

// LegacyBundle is a parsed V1 bundle. Base64 decoding happens on first
// access per id and the decoded bytes are cached for the handle lifetime.
type LegacyBundle struct {
	document []byte
	entries  map[string]*EmbeddedMedia

	mu    sync.Mutex
	cache map[string][]byte
}

type legacyDocument struct {
	EmbeddedMedia []EmbeddedMedia `json:"embeddedMedia"`
}

// ParseLegacyBundle parses data as a V1 bundle. Any JSON object is
// accepted, with or without embedded media; non-JSON input is rejected.
func ParseLegacyBundle(data []byte) (*LegacyBundle, error) {
	var doc legacyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("not a legacy bundle: %w", err)
	}

	entries := make(map[string]*EmbeddedMedia, len(doc.EmbeddedMedia))
	for i := range doc.EmbeddedMedia {
		e := &doc.EmbeddedMedia[i]
		if e.ID == "" {
			return nil, fmt.Errorf("legacy bundle: embedded media with empty id")
		}
		if _, dup := entries[e.ID]; dup {
			return nil, fmt.Errorf("legacy bundle: %w: %q", ErrDuplicateMediaID, e.ID)
		}
		entries[e.ID] = e
	}

	return &LegacyBundle{
		document: data,
		entries:  entries,
		cache:    make(map[string][]byte),
	}, nil
}

// Document returns the bundle bytes. In V1 the document is the artifact.
func (b *LegacyBundle) Document() []byte { return b.document }

// Media decodes the embedded entry for id, returning its bytes and MIME
// type. Decode results are cached so repeated lookups pay the base64
// cost once.
func (b *LegacyBundle) Media(id string) ([]byte, string, error) {
	entry, ok := b.entries[id]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", ErrMediaNotFound, id)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if data, ok := b.cache[id]; ok {
		return data, entry.MIMEType, nil
	}

	text := strings.TrimSpace(entry.Base64Text)
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, "", fmt.Errorf("legacy media %q: invalid base64: %w", id, err)
	}
	b.cache[id] = data
	return data, entry.MIMEType, nil
}

// Entries lists the embedded media entries.
func (b *LegacyBundle) Entries() []EmbeddedMedia {
	out := make([]EmbeddedMedia, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, *e)
	}
	return out
}

// BuildLegacyBundle produces V1 bundle bytes: the document object with an
// embeddedMedia list spliced in, every blob inlined as base64 text. The
// old generation is still producible for installations that cannot read
// trailer-indexed containers.
func BuildLegacyBundle(ctx context.Context, document []byte, items []MediaItem) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(document, &doc); err != nil {
		return nil, fmt.Errorf("document is not a JSON object: %w", err)
	}

	seen := make(map[string]struct{}, len(items))
	embedded := make([]EmbeddedMedia, 0, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, dup := seen[item.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateMediaID, item.ID)
		}
		seen[item.ID] = struct{}{}

		data, err := readSource(item.Source)
		if err != nil {
			return nil, fmt.Errorf("read media %q: %w", item.ID, err)
		}
		embedded = append(embedded, EmbeddedMedia{
			ID:         item.ID,
			Name:       item.Name,
			MIMEType:   item.MIMEType,
			Base64Text: base64.StdEncoding.EncodeToString(data),
		})
	}

	embeddedJSON, err := json.Marshal(embedded)
	if err != nil {
		return nil, err
	}
	doc["embeddedMedia"] = embeddedJSON
	return json.Marshal(doc)
}
