// The tutorial player opens its own executable file and serves the
// project packaged inside it. Playback proper (page navigation, media
// presentation) lives in the player frontend; this entrypoint resolves
// the packaged project through the format shim and exposes inspection
// and extraction commands:
//
//	tutorial-player               summary of the embedded project
//	tutorial-player document      dump the project document to stdout
//	tutorial-player extract <id> [dest]
//	tutorial-player icon <dest>
package main

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/kimkyeseung/tutorial-maker/pkg/container"
	"github.com/kimkyeseung/tutorial-maker/pkg/logging"
)

const version = "0.2.0"

// Exit codes
const (
	ExitOK            = 0
	ExitNoProjectData = 1
	ExitCorrupt       = 2
	ExitUsage         = 3
	ExitIOError       = 4
	ExitPanic         = 5
)

func main() {
	// Panic guard: a broken artifact must report, not crash silently.
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC: %v\n", r)
			debug.PrintStack()
			os.Exit(ExitPanic)
		}
	}()

	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-V") {
		fmt.Printf("tutorial-player %s\n", version)
		os.Exit(ExitOK)
	}

	exePath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get executable path: %v\n", err)
		os.Exit(ExitIOError)
	}

	logger := logging.NewLogger("tutorial-player", logging.GetLogLevel(), os.Stderr)

	source, err := container.OpenProjectWithLogger(exePath, logger)
	switch {
	case err == nil:
	case errors.Is(err, container.ErrNoProjectData):
		fmt.Fprintln(os.Stderr, "No project data embedded in this binary.")
		os.Exit(ExitNoProjectData)
	case errors.Is(err, container.ErrCorruptContainer):
		fmt.Fprintf(os.Stderr, "Cannot load project data: %v\n", err)
		os.Exit(ExitCorrupt)
	default:
		fmt.Fprintf(os.Stderr, "Failed to open project: %v\n", err)
		os.Exit(ExitIOError)
	}
	defer source.Close()

	os.Exit(run(source, os.Args[1:]))
}

func run(source *container.ProjectSource, args []string) int {
	if len(args) == 0 {
		return info(source)
	}

	switch args[0] {
	case "info":
		return info(source)
	case "document":
		doc, err := source.Document()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cannot load project data: %v\n", err)
			return ExitCorrupt
		}
		os.Stdout.Write(doc)
		return ExitOK
	case "extract":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: tutorial-player extract <media-id> [dest]")
			return ExitUsage
		}
		return extract(source, args[1], destArg(args, 2, args[1]))
	case "icon":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: tutorial-player icon <dest>")
			return ExitUsage
		}
		return extractIcon(source, args[1])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		return ExitUsage
	}
}

func destArg(args []string, i int, fallback string) string {
	if len(args) > i {
		return args[i]
	}
	return fallback
}

func info(source *container.ProjectSource) int {
	doc, err := source.Document()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot load project data: %v\n", err)
		return ExitCorrupt
	}

	fmt.Printf("Format generation: %s\n", source.Generation())
	fmt.Printf("Document size:     %d bytes\n", len(doc))
	ids := source.MediaIDs()
	fmt.Printf("Media entries:     %d\n", len(ids))
	for _, id := range ids {
		fmt.Printf("  - %s\n", id)
	}
	return ExitOK
}

func extract(source *container.ProjectSource, id, dest string) int {
	data, mimeType, err := source.ResolveMedia(id)
	if err != nil {
		if errors.Is(err, container.ErrMediaNotFound) {
			fmt.Fprintf(os.Stderr, "Media %q not found in this package.\n", id)
			return ExitUsage
		}
		fmt.Fprintf(os.Stderr, "Cannot read media %q: %v\n", id, err)
		return ExitCorrupt
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", dest, err)
		return ExitIOError
	}
	fmt.Printf("Extracted %s (%s, %d bytes) to %s\n", id, mimeType, len(data), dest)
	return ExitOK
}

func extractIcon(source *container.ProjectSource, dest string) int {
	data, err := source.ResolveIcon()
	if err != nil {
		if errors.Is(err, container.ErrMediaNotFound) {
			fmt.Fprintln(os.Stderr, "This package carries no app icon.")
			return ExitUsage
		}
		fmt.Fprintf(os.Stderr, "Cannot read icon: %v\n", err)
		return ExitCorrupt
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", dest, err)
		return ExitIOError
	}
	fmt.Printf("Extracted icon (%d bytes) to %s\n", len(data), dest)
	return ExitOK
}
