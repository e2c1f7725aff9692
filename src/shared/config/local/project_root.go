package local

import (
	"path"
	"runtime"
	"strings"
)

const projectRootSuffix = "/src/shared/config/local/project_root.go"

// ProjectRoot is the repository checkout, for development defaults only.
func ProjectRoot() string {
	_, filePath, _, ok := runtime.Caller(0)

	if !ok {
		panic("Failed to call runtime.Caller")
	}

	if !strings.HasSuffix(filePath, projectRootSuffix) {
		panic("project_root.go has moved, update projectRootSuffix")
	}

	for i := 0; i < strings.Count(projectRootSuffix, "/"); i++ {
		filePath = path.Dir(filePath)
	}

	return filePath
}
