// Package prompts renders the language model prompts used by the triage engine.
//
// Built-in templates are embedded. A file with the same name under
// $XDG_CONFIG_HOME/prpilot/prompts replaces the built-in one; an override
// that fails to parse is ignored with a warning so a bad edit cannot stop a
// run.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/template"
)

// Prompt template names.
const (
	ConflictResolve = "conflict-resolve.md"
	PipelineFailure = "pipeline-failure.md"
)

//go:embed *.md
var builtinFS embed.FS

// OverrideDir is the directory searched for user templates. It is empty when
// the user config directory cannot be determined.
func OverrideDir() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, "prpilot", "prompts")
}

// Load returns the template for name, preferring a valid user override.
func Load(name string) (*template.Template, error) {
	if tmpl, ok := loadOverride(name); ok {
		return tmpl, nil
	}
	data, err := builtinFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("loading prompt template %s: %w", name, err)
	}
	return parse(name, data)
}

func loadOverride(name string) (*template.Template, bool) {
	dir := OverrideDir()
	if dir == "" {
		return nil, false
	}
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	tmpl, err := parse(name, data)
	if err != nil {
		slog.Warn("ignoring invalid prompt override", "path", path, "error", err)
		return nil, false
	}
	slog.Debug("using prompt override", "path", path)
	return tmpl, true
}

// Missing keys are an error rather than "<no value>" in the prompt.
func parse(name string, data []byte) (*template.Template, error) {
	return template.New(name).Option("missingkey=error").Parse(string(data))
}

// Execute renders name with data.
func Execute(name string, data map[string]string) (string, error) {
	tmpl, err := Load(name)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing prompt template %s: %w", name, err)
	}
	return buf.String(), nil
}

// List returns the built-in template names, sorted.
func List() ([]string, error) {
	names, err := fs.Glob(builtinFS, "*.md")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
