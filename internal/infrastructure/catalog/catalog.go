// Package catalog reads field catalogues from YAML. The embedded default
// catalogue seeds an empty database; an operator can replace it with a file.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jbcub/studentdir/internal/domain/student"
)

//go:embed default_fields.yaml
var defaultCatalog []byte

// File is the YAML document layout.
type File struct {
	Fields []FieldSpec `yaml:"fields"`
}

// FieldSpec is one field entry of a catalogue file.
type FieldSpec struct {
	Name           string   `yaml:"name"`
	Classification string   `yaml:"classification"`
	Description    string   `yaml:"description,omitempty"`
	Synonyms       []string `yaml:"synonyms,omitempty"`
}

// Default returns the embedded catalogue.
func Default() ([]student.FieldDefinition, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalogue file. An empty path means the embedded default.
func Load(path string) ([]student.FieldDefinition, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	defs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	return defs, nil
}

// Parse decodes and validates a catalogue document. Synonym collisions are
// not checked here; resolution.NewRegistry reports them all at once.
func Parse(data []byte) ([]student.FieldDefinition, error) {
	var f File
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	defs := make([]student.FieldDefinition, 0, len(f.Fields))
	for i, spec := range f.Fields {
		d := student.FieldDefinition{
			Name:           strings.TrimSpace(spec.Name),
			Classification: student.Classification(strings.ToLower(strings.TrimSpace(spec.Classification))),
			Description:    strings.TrimSpace(spec.Description),
			Synonyms:       spec.Synonyms,
		}
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("field #%d: %w", i+1, err)
		}
		defs = append(defs, d)
	}
	return defs, nil
}

// Encode renders definitions in the catalogue file layout.
func Encode(defs []student.FieldDefinition) ([]byte, error) {
	f := File{Fields: make([]FieldSpec, 0, len(defs))}
	for _, d := range defs {
		f.Fields = append(f.Fields, FieldSpec{
			Name:           d.Name,
			Classification: string(d.Classification),
			Description:    d.Description,
			Synonyms:       d.Synonyms,
		})
	}
	return yaml.Marshal(f)
}
