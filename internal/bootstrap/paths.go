package bootstrap

import (
	"os"
	"path/filepath"
	"strings"
)

// appDir is the per-user directory for settings and local tools.
func appDir(homeDir string) string {
	return filepath.Join(homeDir, ".longform-transcriber")
}

// settingsPath honors LONGFORM_SETTINGS so a YAML file can replace the
// default JSON settings.
func settingsPath(homeDir string) string {
	if p := strings.TrimSpace(os.Getenv("LONGFORM_SETTINGS")); p != "" {
		return p
	}
	return filepath.Join(appDir(homeDir), "settings.json")
}

// ensureLocalBinOnPATH prepends the app's bin directory so locally
// installed ffmpeg and whisper.cpp builds are found.
func ensureLocalBinOnPATH(homeDir string) error {
	binDir := filepath.Join(appDir(homeDir), "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	current := os.Getenv("PATH")
	for _, entry := range filepath.SplitList(current) {
		if filepath.Clean(entry) == filepath.Clean(binDir) {
			return nil
		}
	}

	if current == "" {
		return os.Setenv("PATH", binDir)
	}
	return os.Setenv("PATH", binDir+string(os.PathListSeparator)+current)
}

// transcriptFileName builds output text filename from input media name.
func transcriptFileName(inputPath, suffix string) string {
	base := filepath.Base(inputPath)
	name := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "transcript"
	}
	return name + suffix + ".txt"
}
