package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

type packageInfo struct {
	ImportPath string
	Imports    []string
}

// corePackages hold room and session state and must stay transport-agnostic.
var corePackages = []string{
	"arena-rooms/server/internal/spatial",
	"arena-rooms/server/internal/visibility",
	"arena-rooms/server/internal/entity",
	"arena-rooms/server/internal/player",
	"arena-rooms/server/internal/room",
	"arena-rooms/server/internal/session",
	"arena-rooms/server/internal/matchmaking",
}

var forbiddenForCore = []string{
	"github.com/gorilla/websocket",
	"arena-rooms/server/internal/net/ws",
	"arena-rooms/server/internal/net/intake",
	"arena-rooms/server/internal/app",
	"net/http",
}

func isCore(importPath string) bool {
	for _, core := range corePackages {
		if importPath == core || strings.HasPrefix(importPath, core+"/") {
			return true
		}
	}
	return false
}

func isForbidden(imp string) bool {
	for _, forbidden := range forbiddenForCore {
		if imp == forbidden || strings.HasPrefix(imp, forbidden+"/") {
			return true
		}
	}
	return false
}

func main() {
	cmd := exec.Command("go", "list", "-json", "./internal/...")
	cmd.Env = os.Environ()
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Stderr.Write(exitErr.Stderr)
		}
		fmt.Fprintf(os.Stderr, "depscheck: failed to list packages: %v\n", err)
		os.Exit(1)
	}

	decoder := json.NewDecoder(bytes.NewReader(output))

	var violations []string
	for {
		var pkg packageInfo
		if err := decoder.Decode(&pkg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			fmt.Fprintf(os.Stderr, "depscheck: failed to decode package info: %v\n", err)
			os.Exit(1)
		}

		if !isCore(pkg.ImportPath) {
			continue
		}
		for _, imp := range pkg.Imports {
			if isForbidden(imp) {
				violations = append(violations, fmt.Sprintf("%s -> %s", pkg.ImportPath, imp))
			}
		}
	}

	if len(violations) > 0 {
		sort.Strings(violations)
		fmt.Fprintln(os.Stderr, "depscheck: found forbidden imports:")
		for _, violation := range violations {
			fmt.Fprintf(os.Stderr, "  %s\n", violation)
		}
		os.Exit(1)
	}
}
