// Package version holds build metadata, set with -ldflags at build time:
//
//	go build -ldflags "-X github.com/mutablelogic/go-dqueue/pkg/version.GitTag=v1.0.0"
package version

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

var (
	GitSource   string
	GitTag      string
	GitBranch   string
	GitHash     string
	GoBuildTime string
)

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// ExecName returns the name of the executable
func ExecName() string {
	name, err := os.Executable()
	if err != nil || name == "" {
		name = os.Args[0]
	}
	return filepath.Base(name)
}

// Version returns the tag, or the branch and hash, or "dev" when no build
// metadata has been set
func Version() string {
	switch {
	case GitTag != "":
		return GitTag
	case GitBranch != "" && GitHash != "":
		return fmt.Sprintf("%s@%s", GitBranch, shortHash(GitHash))
	case GitHash != "":
		return shortHash(GitHash)
	}
	return "dev"
}

// Compiler returns the go version, operating system and architecture
func Compiler() string {
	return fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func shortHash(hash string) string {
	hash = strings.TrimSpace(hash)
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
