// Package scaffold writes a starter cognicore.yml and a sample observation
// file into a directory.
package scaffold

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

const (
	ConfigFile       = "cognicore.yml"
	ObservationsFile = "observations.jsonl"
)

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// sampleData feeds the observations template. Timestamps are relative to now
// so the sample lands inside the next cycle's window.
type sampleData struct {
	now time.Time
}

// Ago renders the RFC3339 timestamp seconds before now.
func (d sampleData) Ago(seconds int) string {
	return d.now.Add(-time.Duration(seconds) * time.Second).Format(time.RFC3339)
}

// Initialize creates cognicore.yml and observations.jsonl in dir.
// If force is true, existing files are replaced.
func Initialize(dir string, force bool, now time.Time) ([]string, error) {
	if !force {
		if err := CheckExisting(dir); err != nil {
			return nil, err
		}
	}

	files, err := getTemplateFiles(now)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	created := make([]string, 0, len(files))
	for _, file := range files {
		path := filepath.Join(dir, file.Path)
		if err := os.WriteFile(path, file.Content, file.Permissions); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
		created = append(created, file.Path)
	}

	// The written config must load exactly like one the user wrote.
	if _, err := config.Load(filepath.Join(dir, ConfigFile)); err != nil {
		return nil, fmt.Errorf("created %s is invalid: %w", ConfigFile, err)
	}

	return created, nil
}

// getTemplateFiles reads and renders all template files
func getTemplateFiles(now time.Time) ([]FileInfo, error) {
	cfg, err := templatesFS.ReadFile("templates/cognicore.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read %s template: %w", ConfigFile, err)
	}

	tmpl, err := template.ParseFS(templatesFS, "templates/observations.jsonl.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s template: %w", ObservationsFile, err)
	}
	var obs bytes.Buffer
	if err := tmpl.Execute(&obs, sampleData{now: now.UTC()}); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", ObservationsFile, err)
	}

	return []FileInfo{
		{Path: ConfigFile, Content: cfg, Permissions: 0644},
		{Path: ObservationsFile, Content: obs.Bytes(), Permissions: 0644},
	}, nil
}
