package helpers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TempDirWithFiles creates a temporary directory seeded with an empty
// file for each of the names provided, returning the directory and the
// absolute paths of the created files.
func TempDirWithFiles(t *testing.T, files []string) (string, []string) {
	dirPath := t.TempDir()
	filePaths := make([]string, 0, len(files))
	for _, filename := range files {
		path := filepath.Join(dirPath, filename)
		assert.Nil(t, os.MkdirAll(filepath.Dir(path), os.ModeDir|os.ModePerm), "failed to create parent dirs in temporary dir")
		assert.Nil(t, os.WriteFile(path, []byte{}, os.ModePerm), "failed to create file in temporary dir")
		filePaths = append(filePaths, path)
	}

	assert.Len(t, filePaths, len(files), "Expected file paths recorded to match length of requested files")
	return dirPath, filePaths
}
