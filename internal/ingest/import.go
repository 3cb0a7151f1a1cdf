package ingest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mickaelmarchal/exifstream/pkg/logger"
)

// ImportResult reports the outcome of importing a single records image
// binary. AssetPath is nil when the import of that particular record
// failed.
type ImportResult struct {
	RecordID  string  `json:"recordId"`
	AssetPath *string `json:"assetPath"`
}

// ImportImages copies the image binaries backing the given records from
// the library in to the services asset directory, preserving each
// records library-relative path.
//
// Individual failures (record missing, source file unreadable) degrade
// to a nil AssetPath for that record and a warning; an error is only
// returned when NOT A SINGLE record could be imported.
func (service *ingestService) ImportImages(recordIDs []string) ([]ImportResult, error) {
	if len(recordIDs) == 0 {
		return nil, fmt.Errorf("cannot import images: no record IDs provided")
	}

	stored, err := service.dataStore.GetRecordsWithIDs(recordIDs)
	if err != nil {
		return nil, fmt.Errorf("cannot import images: %s", err.Error())
	}

	byID := make(map[string]int, len(stored))
	for k, v := range stored {
		byID[v.ID] = k
	}

	results := make([]ImportResult, 0, len(recordIDs))
	imported := 0
	for _, id := range recordIDs {
		result := ImportResult{RecordID: id}

		idx, ok := byID[id]
		if !ok {
			log.Emit(logger.WARNING, "Cannot import image for record %s: no such record\n", id)
			results = append(results, result)
			continue
		}

		assetPath, err := service.importImage(stored[idx].Record.SourcePath)
		if err != nil {
			log.Emit(logger.WARNING, "Cannot import image for record %s: %s\n", id, err.Error())
			results = append(results, result)
			continue
		}

		imported++
		result.AssetPath = &assetPath
		results = append(results, result)
	}

	if imported == 0 {
		return nil, fmt.Errorf("failed to import any of the %d images requested", len(recordIDs))
	}

	if imported < len(recordIDs) {
		log.Emit(logger.WARNING, "Imported %d of %d images requested\n", imported, len(recordIDs))
	}

	return results, nil
}

// importImage copies a single library file to the asset directory and
// returns the path of the copy.
func (service *ingestService) importImage(sourcePath string) (string, error) {
	src := filepath.Join(service.config.LibraryPath, filepath.FromSlash(sourcePath))
	dst := filepath.Join(service.config.AssetsDirPath, filepath.FromSlash(sourcePath))

	if err := os.MkdirAll(filepath.Dir(dst), os.ModeDir|os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create asset directory: %s", err.Error())
	}

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to open source image: %s", err.Error())
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create asset file: %s", err.Error())
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", fmt.Errorf("failed to copy image to asset file: %s", err.Error())
	}

	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to finalise asset file: %s", err.Error())
	}

	return dst, nil
}
