// Package builder orchestrates a packaging run: it loads and validates
// the authored project document, resolves its media references to byte
// sources, and drives the container (or legacy bundle) build.
package builder

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/kimkyeseung/tutorial-maker/pkg/container"
	"github.com/kimkyeseung/tutorial-maker/pkg/logging"
	"github.com/kimkyeseung/tutorial-maker/pkg/project"
)

// Options configures one packaging run.
type Options struct {
	ProjectPath string
	OutputPath  string
	PlayerBin   string // required unless Legacy
	IconPath    string
	MediaDir    string // base for relative media paths; default: project dir
	Legacy      bool
	LogLevel    string
	Workers     int
}

// Run executes a packaging run end to end.
func Run(ctx context.Context, opts Options) error {
	logger := newLogger(opts.LogLevel)
	logger.Info("🎬 Tutorial builder starting...")

	docData, err := os.ReadFile(opts.ProjectPath)
	if err != nil {
		return fmt.Errorf("read project: %w", err)
	}
	proj, err := project.Parse(docData)
	if err != nil {
		return err
	}
	if err := proj.Validate(); err != nil {
		return fmt.Errorf("invalid project: %w", err)
	}
	logger.Info("📖 Project loaded",
		"title", proj.Title, "pages", len(proj.Pages), "media", len(proj.Media))

	baseDir := opts.MediaDir
	if baseDir == "" {
		baseDir = filepath.Dir(opts.ProjectPath)
	}
	items, err := resolveMedia(proj, baseDir)
	if err != nil {
		return err
	}

	if opts.Legacy {
		logger.Info("📜 Producing legacy bundle", "output", opts.OutputPath)
		data, err := container.BuildLegacyBundle(ctx, docData, items)
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.OutputPath, data, 0o644); err != nil {
			return fmt.Errorf("write bundle: %w", err)
		}
		logger.Info("✅ Legacy bundle written", "output", opts.OutputPath, "size", len(data))
		return nil
	}

	if opts.PlayerBin == "" {
		return fmt.Errorf("player binary path must be specified via --player-bin or TUTORIAL_PLAYER_BIN")
	}

	icon := resolveIcon(opts, proj, baseDir)

	result, err := container.Build(ctx, container.BuildOptions{
		PlayerPath: opts.PlayerBin,
		OutputPath: opts.OutputPath,
		Document:   docData,
		Media:      items,
		Icon:       icon,
		Workers:    opts.Workers,
		Logger:     logger,
		Progress: func(p container.Progress) {
			switch p.Stage {
			case "media":
				logger.Info("📦 Media packaged", "id", p.MediaID, "done", p.Done, "total", p.Total)
			case "document":
				logger.Info("📜 Document packaged")
			case "finalize":
				logger.Info("🪄 Finalizing container")
			}
		},
	})
	if err != nil {
		return err
	}

	logger.Info("✅ Build complete", "output", result.Path, "size", result.Size)
	return nil
}

// resolveMedia turns the project's media references into builder items.
func resolveMedia(proj *project.Project, baseDir string) ([]container.MediaItem, error) {
	items := make([]container.MediaItem, 0, len(proj.Media))
	for _, ref := range proj.Media {
		path := ref.Path
		if path == "" {
			path = ref.Name
		}
		if path == "" {
			return nil, fmt.Errorf("media %q has neither path nor name", ref.ID)
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("media %q: %w", ref.ID, err)
		}
		items = append(items, container.MediaItem{
			ID:       ref.ID,
			Name:     ref.Name,
			MIMEType: ref.MIMEType,
			Source:   container.FileSource(path),
		})
	}
	return items, nil
}

// resolveIcon picks the icon source: the --icon flag wins, then the
// project's iconId reference.
func resolveIcon(opts Options, proj *project.Project, baseDir string) container.MediaSource {
	if opts.IconPath != "" {
		return container.FileSource(opts.IconPath)
	}
	if proj.IconID == "" {
		return nil
	}
	for _, ref := range proj.Media {
		if ref.ID != proj.IconID {
			continue
		}
		path := ref.Path
		if path == "" {
			path = ref.Name
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		return container.FileSource(path)
	}
	return nil
}

// newLogger resolves the log level (CLI flag, then builder-specific env,
// then shared env, then "info") and builds the hclog logger.
func newLogger(cliLevel string) hclog.Logger {
	level := cliLevel
	if level == "" {
		level = os.Getenv("TUTORIAL_BUILDER_LOG_LEVEL")
	}
	if level == "" {
		level = os.Getenv("TUTORIAL_LOG_LEVEL")
	}
	if level == "" {
		level = "info"
	}

	// "json" or "json:<level>" switches to JSON output
	jsonFormat := false
	if strings.HasPrefix(level, "json") {
		jsonFormat = true
		if parts := strings.SplitN(level, ":", 2); len(parts) == 2 {
			level = parts[1]
		} else {
			level = "info"
		}
	}

	var output io.Writer = os.Stderr
	if logPath := os.Getenv("TUTORIAL_LOG_PATH"); logPath != "" {
		if file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			output = file
		}
	}
	if !jsonFormat {
		output = logging.NewPrefixWriter("🎬 ", output)
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       "tutorial-builder",
		Level:      hclog.LevelFromString(level),
		JSONFormat: jsonFormat,
		Output:     output,
		TimeFormat: "2006-01-02T15:04:05Z",
		TimeFn: func() time.Time {
			return time.Now().UTC()
		},
	})
}
