package testing

import (
	"os"
	"path/filepath"

	"github.com/onsi/gomega"
)

// TouchFiles creates each relative path under root with placeholder contents.
func TouchFiles(root string, relPaths ...string) {
	for _, relPath := range relPaths {
		path := filepath.Join(root, relPath)
		gomega.ExpectWithOffset(1, os.MkdirAll(filepath.Dir(path), os.ModePerm)).To(gomega.Succeed())
		gomega.ExpectWithOffset(1, os.WriteFile(path, []byte(relPath), 0o644)).To(gomega.Succeed())
	}
}

func MakeDirs(root string, relPaths ...string) {
	for _, relPath := range relPaths {
		gomega.ExpectWithOffset(1, os.MkdirAll(filepath.Join(root, relPath), os.ModePerm)).To(gomega.Succeed())
	}
}

func RelPath(root string, path string) string {
	rel, err := filepath.Rel(root, path)
	gomega.ExpectWithOffset(1, err).NotTo(gomega.HaveOccurred())
	return rel
}

func MakeTempDir() string {
	dir, err := os.MkdirTemp("", "stem-test-")
	gomega.ExpectWithOffset(1, err).NotTo(gomega.HaveOccurred())
	return dir
}

func RemoveTempDir(dir string) {
	gomega.ExpectWithOffset(1, os.RemoveAll(dir)).To(gomega.Succeed())
}
