// Package store archives run reports as markdown files with YAML frontmatter.
// Each run is one file named after its run ID; the frontmatter holds the
// structured result and the body a human-readable report.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/adrg/frontmatter"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a run report does not exist.
var ErrNotFound = errors.New("run report not found")

// readDocument decodes the frontmatter of the markdown file at path into
// matter and returns the body.
func readDocument(path string, matter any) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	body, err := frontmatter.MustParse(bytes.NewReader(data), matter)
	if err != nil {
		return "", fmt.Errorf("parsing frontmatter of %s: %w", path, err)
	}
	return string(body), nil
}

// writeDocument writes matter as YAML frontmatter followed by body.
func writeDocument(path string, matter any, body string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}

	fm, err := yaml.Marshal(matter)
	if err != nil {
		return fmt.Errorf("marshaling frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n\n")
	buf.WriteString(body)

	return atomicWriteFile(path, buf.Bytes(), 0o644)
}

// atomicWriteFile writes data to a temp file then renames it into place,
// preventing partial writes on crash or disk-full.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
