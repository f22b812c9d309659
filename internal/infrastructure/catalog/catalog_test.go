package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbcub/studentdir/internal/domain/resolution"
	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/domain/student"
)

func TestDefault_BuildsRegistry(t *testing.T) {
	defs, err := Default()
	require.NoError(t, err)

	registry, err := resolution.NewRegistry(defs)
	require.NoError(t, err)

	for _, name := range student.PrimaryFields {
		_, ok := registry.Definition(name)
		assert.True(t, ok, name)
	}

	def, ok := registry.Resolve("CUB_Email")
	require.True(t, ok)
	assert.Equal(t, student.FieldEmails, def.Name)

	def, ok = registry.Resolve("matriculation num.")
	require.True(t, ok)
	assert.Equal(t, student.ClassOthers, def.Classification)
}

func TestParse_RejectsUnknownClassification(t *testing.T) {
	_, err := Parse([]byte("fields:\n  - name: gpa\n    classification: grades\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidFieldClass)
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("fields:\n  - name: gpa\n    type: courses\n"))
	assert.Error(t, err)
}

func TestLoad_FileAndRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fields.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
fields:
  - name: Calculus
    classification: Courses
    synonyms: ["Calc I"]
`), 0o600))

	defs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, student.ClassCourses, defs[0].Classification)

	out, err := Encode(defs)
	require.NoError(t, err)
	again, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, defs, again)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
