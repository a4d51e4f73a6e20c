// Package definition loads workflow definitions from YAML, validates them and
// serves them from a registry with lock-free reads.
package definition

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/digiurban/lifecycle/model"
	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of a definition file. One file may declare any
// number of workflows.
type File struct {
	Workflows []model.WorkflowDefinition `yaml:"workflows"`
}

// Loader scans directories for YAML definition files, parses them, and computes
// SHA-256 checksums.
type Loader struct{}

// NewLoader creates a new definition Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadAll recursively scans directories for *.yaml and *.yml files and returns
// every workflow they declare.
func (l *Loader) LoadAll(directories []string) ([]model.WorkflowDefinition, error) {
	var defs []model.WorkflowDefinition

	for _, dir := range directories {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}

			fileDefs, err := l.LoadFile(path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			defs = append(defs, fileDefs...)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning directory %s: %w", dir, err)
		}
	}

	return defs, nil
}

// Load reads every definition under directories and validates them. When
// seedDefaults is set the built-in workflows come first, so a file declaring
// the same module type replaces the built-in one in the registry.
func Load(directories []string, seedDefaults bool) ([]model.WorkflowDefinition, error) {
	loaded, err := NewLoader().LoadAll(directories)
	if err != nil {
		return nil, err
	}
	if verrs := NewValidator().Validate(loaded); len(verrs) > 0 {
		return nil, fmt.Errorf("%d invalid definitions, first: %w", len(verrs), verrs[0])
	}

	var defs []model.WorkflowDefinition
	if seedDefaults {
		defs = append(defs, DefaultWorkflows()...)
	}
	return append(defs, loaded...), nil
}

// LoadFile loads and parses a single YAML definition file. Every workflow in
// the file carries the file's SHA-256 checksum and path.
func (l *Loader) LoadFile(path string) ([]model.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	checksum := fmt.Sprintf("%x", sha256.Sum256(data))
	for i := range f.Workflows {
		f.Workflows[i].Checksum = checksum
		f.Workflows[i].SourceFile = path
	}

	return f.Workflows, nil
}

// fingerprint computes a checksum for a definition that did not come from a
// file, such as one saved through the API.
func fingerprint(def model.WorkflowDefinition) string {
	def.Checksum = ""
	def.SourceFile = ""
	data, err := yaml.Marshal(def)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%x", sha256.Sum256(data))
}
