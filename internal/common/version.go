package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Build metadata, injected at link time:
//
//	go build -ldflags "-X github.com/ternarybob/indago/internal/common.Version=1.2.3"
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

// GetVersion returns the release version. A .version file placed next to the
// binary overrides the linked-in value, which lets deployments restamp a
// prebuilt artifact.
func GetVersion() string {
	if v := versionFromFile(); v != "" {
		Version = v
	}
	return Version
}

// GetFullVersion returns the version with build metadata attached
func GetFullVersion() string {
	return fmt.Sprintf("%s (build %s, commit %s)", GetVersion(), Build, GitCommit)
}

func versionFromFile() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(filepath.Dir(exe), ".version"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
