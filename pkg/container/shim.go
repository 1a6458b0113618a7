package container

import (
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
)

// Generation identifies which packaging convention a project was read
// from. It exists for logging and diagnostics only; callers consume the
// same ProjectSource interface either way.
type Generation int

const (
	GenerationNone Generation = iota
	GenerationV1              // base64-embedded legacy bundle
	GenerationV2              // trailer-indexed container
)

func (g Generation) String() string {
	switch g {
	case GenerationV1:
		return "v1"
	case GenerationV2:
		return "v2"
	default:
		return "none"
	}
}

// ProjectSource is the single normalized view over both container
// generations: a project document plus media resolution by id. This type
// is the only place format-version knowledge is allowed to live;
// playback and navigation never see V1 vs V2.
type ProjectSource struct {
	generation Generation
	container  *Container
	legacy     *LegacyBundle
	logger     hclog.Logger
}

// OpenProject resolves path through the generation chain: V2 trailer
// first; on ErrNotAContainer, the whole file is tried as a V1 bundle; if
// neither parses, ErrNoProjectData is returned.
//
// A file whose trailer magic matches but whose manifest is broken fails
// hard with ErrCorruptContainer; no V1 fallback is attempted for it.
func OpenProject(path string) (*ProjectSource, error) {
	return OpenProjectWithLogger(path, hclog.NewNullLogger())
}

// OpenProjectWithLogger is OpenProject with a custom logger.
func OpenProjectWithLogger(path string, logger hclog.Logger) (*ProjectSource, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	c, err := OpenContainerWithLogger(path, logger)
	if err == nil {
		logger.Debug("Project resolved", "generation", GenerationV2, "path", path)
		return &ProjectSource{generation: GenerationV2, container: c, logger: logger}, nil
	}
	if !errors.Is(err, ErrNotAContainer) {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	legacy, err := ParseLegacyBundle(data)
	if err != nil {
		logger.Debug("Neither container nor legacy bundle", "path", path, "error", err)
		return nil, fmt.Errorf("%w: %s", ErrNoProjectData, path)
	}
	logger.Debug("Project resolved", "generation", GenerationV1, "path", path)
	return &ProjectSource{generation: GenerationV1, legacy: legacy, logger: logger}, nil
}

// Generation reports which format served this source.
func (p *ProjectSource) Generation() Generation { return p.generation }

// Document returns the project document bytes.
func (p *ProjectSource) Document() ([]byte, error) {
	if p.generation == GenerationV2 {
		return p.container.Document()
	}
	return p.legacy.Document(), nil
}

// ResolveMedia returns the bytes and MIME type for one media id.
func (p *ProjectSource) ResolveMedia(id string) ([]byte, string, error) {
	if p.generation == GenerationV2 {
		entry, ok := p.container.MediaInfo(id)
		if !ok {
			return nil, "", fmt.Errorf("%w: %q", ErrMediaNotFound, id)
		}
		data, err := p.container.Media(id)
		if err != nil {
			return nil, "", err
		}
		return data, entry.MIMEType, nil
	}
	return p.legacy.Media(id)
}

// ResolveIcon returns the app icon bytes. Legacy bundles never carried a
// separate icon blob, so V1 sources always report absence.
func (p *ProjectSource) ResolveIcon() ([]byte, error) {
	if p.generation != GenerationV2 {
		return nil, fmt.Errorf("%w: app icon", ErrMediaNotFound)
	}
	return p.container.Icon()
}

// MediaIDs lists every resolvable media id.
func (p *ProjectSource) MediaIDs() []string {
	if p.generation == GenerationV2 {
		entries := p.container.Entries()
		ids := make([]string, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}
		return ids
	}
	entries := p.legacy.Entries()
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

// Close releases the underlying handle, if any.
func (p *ProjectSource) Close() error {
	if p.container != nil {
		return p.container.Close()
	}
	return nil
}
