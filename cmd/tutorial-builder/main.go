package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/spf13/cobra"

	"github.com/kimkyeseung/tutorial-maker/pkg/builder"
)

const version = "0.2.0"

var (
	projectPath string
	outputPath  string
	playerBin   string
	iconPath    string
	mediaDir    string
	legacyMode  bool
	logLevel    string
	workers     int
	rootCmd     *cobra.Command
	versionFlag bool
)

func getBuilderTimestamp() string {
	// Try to get vcs.time from build info
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.time" {
				if t, err := time.Parse(time.RFC3339, setting.Value); err == nil {
					return t.UTC().Format(time.RFC3339)
				}
			}
		}
	}
	// Fallback to binary modification time
	if exePath, err := os.Executable(); err == nil {
		if stat, err := os.Stat(exePath); err == nil {
			return stat.ModTime().UTC().Format(time.RFC3339)
		}
	}
	return time.Now().UTC().Format(time.RFC3339)
}

func init() {
	rootCmd = &cobra.Command{
		Use:   "tutorial-builder",
		Short: "Package a tutorial project into a standalone player binary",
		Long:  `Package a tutorial project into a standalone player binary`,
		Run:   buildArtifact,
	}

	rootCmd.Flags().StringVarP(&projectPath, "project", "p", "", "Path to project.json (required)")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output path for the packaged artifact (required)")
	rootCmd.Flags().StringVar(&playerBin, "player-bin", "", "Path to the player binary (or TUTORIAL_PLAYER_BIN)")
	rootCmd.Flags().StringVar(&iconPath, "icon", "", "Path to an app icon to embed")
	rootCmd.Flags().StringVar(&mediaDir, "media-dir", "", "Base directory for relative media paths (defaults to the project file's directory)")
	rootCmd.Flags().BoolVar(&legacyMode, "legacy", false, "Produce a legacy base64-embedded bundle instead of a container")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.Flags().IntVar(&workers, "workers", 0, "Concurrent media reads (0 = default)")
	rootCmd.Flags().BoolVarP(&versionFlag, "version", "V", false, "Show version information")

	if err := rootCmd.MarkFlagRequired("project"); err != nil {
		panic(err)
	}
	if err := rootCmd.MarkFlagRequired("output"); err != nil {
		panic(err)
	}
}

func main() {
	// Handle --version or -V before cobra parses other flags
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-V") {
		fmt.Printf("tutorial-builder %s\n", version)
		fmt.Printf("Built: %s\n", getBuilderTimestamp())
		os.Exit(0)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildArtifact(cmd *cobra.Command, args []string) {
	if versionFlag {
		fmt.Printf("tutorial-builder %s\n", version)
		fmt.Printf("Built: %s\n", getBuilderTimestamp())
		return
	}

	bin := playerBin
	if bin == "" {
		bin = os.Getenv("TUTORIAL_PLAYER_BIN")
	}

	err := builder.Run(context.Background(), builder.Options{
		ProjectPath: projectPath,
		OutputPath:  outputPath,
		PlayerBin:   bin,
		IconPath:    iconPath,
		MediaDir:    mediaDir,
		Legacy:      legacyMode,
		LogLevel:    logLevel,
		Workers:     workers,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
