// Package workdir resolves the recordings directory and builds
// recording artifact names.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// EnvDir overrides the default recordings root when set.
const EnvDir = "TAPEHEAD_DIR"

// TimestampLayout names artifacts at one-second resolution.
const TimestampLayout = "2006-01-02_15-04-05"

// Root returns the base directory for recorded artifacts. The path is
// resolved at runtime to:
//
//	$TAPEHEAD_DIR, else $HOME/.tapehead/recordings
func Root() (string, error) {
	if dir := os.Getenv(EnvDir); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, ".tapehead", "recordings"), nil
}

// Prep ensures that the recordings directory exists.
func Prep(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create recordings directory %s: %w", dir, err)
	}

	return nil
}

// ArtifactName returns the file name for a recording started at ts.
// The extension reflects the container format of the mode.
func ArtifactName(multitrack bool, ts time.Time) string {
	stamp := ts.Format(TimestampLayout)
	if multitrack {
		return fmt.Sprintf("Multichannel_Recording_%s.wav", stamp)
	}

	return fmt.Sprintf("Recording_%s.mp3", stamp)
}

// ArtifactPath returns the full path for a recording started at ts in
// the given recordings directory.
func ArtifactPath(dir string, multitrack bool, ts time.Time) string {
	return filepath.Join(dir, ArtifactName(multitrack, ts))
}
