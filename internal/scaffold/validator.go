package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CheckExisting returns an error naming every scaffold file already present in dir.
func CheckExisting(dir string) error {
	var existingFiles []string
	for _, name := range []string{ConfigFile, ObservationsFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			existingFiles = append(existingFiles, name)
		}
	}

	if len(existingFiles) == 0 {
		return nil
	}
	return &ExistingFilesError{Files: existingFiles}
}

// ExistingFilesError lists files that would be overwritten.
type ExistingFilesError struct {
	Files []string
}

func (e *ExistingFilesError) Error() string {
	return fmt.Sprintf("already initialized: found %s", strings.Join(e.Files, ", "))
}
