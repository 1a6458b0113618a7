package container

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"
)

// MediaItem is one media blob handed to the builder. Source bytes are
// read in full before an offset is assigned.
type MediaItem struct {
	ID       string
	Name     string
	MIMEType string
	Source   MediaSource
}

// Progress describes one build notification: one per media item plus one
// each for the icon, document, manifest, and finalize stages. Reporting
// is a side effect only; builds succeed or fail regardless of whether a
// callback is installed.
type Progress struct {
	Stage   string // "media", "icon", "document", "manifest", "finalize"
	MediaID string // set for the media stage
	Done    int    // media items appended so far
	Total   int    // total media items
}

// ProgressFunc receives build notifications. Called from the append
// goroutine; implementations must not block for long.
type ProgressFunc func(Progress)

// BuildOptions configures one container build.
type BuildOptions struct {
	// PlayerPath is the previously built player executable whose bytes
	// become the container prefix.
	PlayerPath string

	// OutputPath is the final artifact location. The build writes to a
	// temporary sibling and renames on success; a failed build leaves
	// nothing at OutputPath.
	OutputPath string

	// Document is the serialized project document. Media inside it are
	// references by id, never inline bytes.
	Document []byte

	// Media lists the blobs to append, in append order.
	Media []MediaItem

	// Icon optionally supplies the app icon bytes.
	Icon MediaSource

	// Progress optionally receives per-stage notifications.
	Progress ProgressFunc

	// Workers bounds concurrent media-source reads. Zero means
	// DefaultWorkers; reads are parallel but append order is not.
	Workers int

	Logger hclog.Logger
}

// BuildResult describes a completed build.
type BuildResult struct {
	Path     string
	Size     int64
	Manifest *Manifest
}

// Build assembles a V2 container: player prefix, media blobs, optional
// icon, project document, manifest, 8-byte little-endian manifest length,
// magic marker. The append order is fixed because the reader parses the
// trailer backward from EOF.
//
// Media sources may be read concurrently, but offset assignment and the
// actual writes happen in a single goroutine in input order, so the
// manifest layout is deterministic for a given input list.
func Build(ctx context.Context, opts BuildOptions) (*BuildResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	if opts.PlayerPath == "" {
		return nil, fmt.Errorf("player path is required")
	}
	if opts.OutputPath == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if len(opts.Document) == 0 {
		return nil, fmt.Errorf("project document is required")
	}
	seen := make(map[string]struct{}, len(opts.Media))
	for _, item := range opts.Media {
		if item.ID == "" {
			return nil, fmt.Errorf("media item with empty id")
		}
		if _, dup := seen[item.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateMediaID, item.ID)
		}
		seen[item.ID] = struct{}{}
	}

	// Never touch the destination until the container is complete.
	tempPath := fmt.Sprintf("%s.tmp.%d.%d", opts.OutputPath, os.Getpid(), time.Now().UnixNano())
	out, err := os.OpenFile(tempPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, os.FileMode(ExecutablePerms))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	committed := false
	defer func() {
		out.Close()
		if !committed {
			os.Remove(tempPath)
		}
	}()

	result, err := appendContainer(ctx, out, opts, logger)
	if err != nil {
		return nil, err
	}

	if err := out.Sync(); err != nil {
		return nil, fmt.Errorf("%w: sync: %v", ErrWriteFailure, err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("%w: close: %v", ErrWriteFailure, err)
	}
	if err := os.Chmod(tempPath, os.FileMode(ExecutablePerms)); err != nil {
		return nil, fmt.Errorf("%w: chmod: %v", ErrWriteFailure, err)
	}
	if err := os.Rename(tempPath, opts.OutputPath); err != nil {
		return nil, fmt.Errorf("%w: finalize: %v", ErrWriteFailure, err)
	}
	committed = true

	logger.Info("✅ Container built",
		"output", opts.OutputPath,
		"media", len(opts.Media),
		"size", fmt.Sprintf("%.2f MB", float64(result.Size)/(1024*1024)))

	result.Path = opts.OutputPath
	return result, nil
}

// appendContainer writes every container region to out, in order.
func appendContainer(ctx context.Context, out *os.File, opts BuildOptions, logger hclog.Logger) (*BuildResult, error) {
	// Player prefix, copied verbatim so the artifact stays launchable.
	player, err := os.Open(opts.PlayerPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open player: %v", ErrWriteFailure, err)
	}
	playerSize, err := io.Copy(out, player)
	player.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: copy player: %v", ErrWriteFailure, err)
	}
	logger.Debug("✍️ Player image written", "size", playerSize)

	manifest := &Manifest{
		FormatVersion: FormatVersion,
		PlayerSize:    uint64(playerSize),
	}
	offset := uint64(playerSize)
	total := len(opts.Media)

	// Media sources are prefetched concurrently; the loop below consumes
	// them strictly in input order so offsets are assigned without races.
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	results := make([]chan []byte, total)
	for i := range results {
		results[i] = make(chan []byte, 1)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, item := range opts.Media {
		i, item := i, item
		g.Go(func() error {
			data, err := readSource(item.Source)
			if err != nil {
				return fmt.Errorf("read media %q: %w", item.ID, err)
			}
			select {
			case results[i] <- data:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	var appendErr error
	for i, item := range opts.Media {
		var data []byte
		select {
		case data = <-results[i]:
		case <-gctx.Done():
			appendErr = gctx.Err()
		}
		if appendErr != nil {
			break
		}

		logger.Debug("✍️ Writing media", "id", item.ID, "offset", offset, "size", len(data))
		if _, err := out.Write(data); err != nil {
			appendErr = fmt.Errorf("write media %q: %w", item.ID, err)
			break
		}
		sum := blake3.Sum256(data)
		manifest.Media = append(manifest.Media, MediaEntry{
			ID:       item.ID,
			Name:     item.Name,
			MIMEType: item.MIMEType,
			Offset:   offset,
			Size:     uint64(len(data)),
			Checksum: hex.EncodeToString(sum[:]),
		})
		offset += uint64(len(data))

		if opts.Progress != nil {
			opts.Progress(Progress{Stage: "media", MediaID: item.ID, Done: i + 1, Total: total})
		}
	}
	// A producer failure cancels gctx and may surface in the consume
	// loop as a bare context error; the g.Wait result carries the cause.
	if err := g.Wait(); err != nil {
		if appendErr == nil || errors.Is(appendErr, context.Canceled) || errors.Is(appendErr, context.DeadlineExceeded) {
			appendErr = err
		}
	}
	if appendErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriteFailure, appendErr)
	}

	if opts.Icon != nil {
		data, err := readSource(opts.Icon)
		if err != nil {
			return nil, fmt.Errorf("%w: read icon: %v", ErrWriteFailure, err)
		}
		if _, err := out.Write(data); err != nil {
			return nil, fmt.Errorf("%w: write icon: %v", ErrWriteFailure, err)
		}
		manifest.Icon = &IconRef{Offset: offset, Size: uint64(len(data))}
		offset += uint64(len(data))
		logger.Debug("✍️ Icon written", "size", len(data))
		if opts.Progress != nil {
			opts.Progress(Progress{Stage: "icon", Done: total, Total: total})
		}
	}

	// Project document.
	if _, err := out.Write(opts.Document); err != nil {
		return nil, fmt.Errorf("%w: write document: %v", ErrWriteFailure, err)
	}
	docSum := blake3.Sum256(opts.Document)
	manifest.DocumentOffset = offset
	manifest.DocumentSize = uint64(len(opts.Document))
	manifest.DocumentChecksum = hex.EncodeToString(docSum[:])
	offset += uint64(len(opts.Document))
	logger.Debug("📜 Document written", "offset", manifest.DocumentOffset, "size", manifest.DocumentSize)
	if opts.Progress != nil {
		opts.Progress(Progress{Stage: "document", Done: total, Total: total})
	}

	// Manifest, then the fixed-width trailer.
	manifestData, err := manifest.Encode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	if _, err := out.Write(manifestData); err != nil {
		return nil, fmt.Errorf("%w: write manifest: %v", ErrWriteFailure, err)
	}
	var lengthField [LengthFieldSize]byte
	binary.LittleEndian.PutUint64(lengthField[:], uint64(len(manifestData)))
	if _, err := out.Write(lengthField[:]); err != nil {
		return nil, fmt.Errorf("%w: write manifest length: %v", ErrWriteFailure, err)
	}
	if _, err := out.Write([]byte(MagicMarker)); err != nil {
		return nil, fmt.Errorf("%w: write magic marker: %v", ErrWriteFailure, err)
	}
	logger.Debug("🪄 Trailer written", "manifest_size", len(manifestData))
	if opts.Progress != nil {
		opts.Progress(Progress{Stage: "manifest", Done: total, Total: total})
		opts.Progress(Progress{Stage: "finalize", Done: total, Total: total})
	}

	size := int64(offset) + int64(len(manifestData)) + TrailerFixedSize
	return &BuildResult{Size: size, Manifest: manifest}, nil
}

// readSource drains a media source into memory. Offsets are assigned only
// after a source has been read in full, so a short or failing source can
// never leave a hole in the layout.
func readSource(src MediaSource) ([]byte, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
