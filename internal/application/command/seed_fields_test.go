package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/domain/student"
	"github.com/jbcub/studentdir/internal/testutil"
)

func TestSeedFields(t *testing.T) {
	dir := testutil.NewDirectory()
	h := NewSeedFieldsHandler(dir, quietLogger())
	ctx := context.Background()

	saved, err := h.Handle(ctx, SeedFieldsCommand{Definitions: testutil.Fields()})
	require.NoError(t, err)
	assert.True(t, saved)

	// A second seed without Replace keeps what is stored.
	smaller := testutil.Fields()[:2]
	saved, err = h.Handle(ctx, SeedFieldsCommand{Definitions: smaller})
	require.NoError(t, err)
	assert.False(t, saved)
	defs, _ := dir.LoadFieldDefinitions(ctx)
	assert.Len(t, defs, len(testutil.Fields()))

	saved, err = h.Handle(ctx, SeedFieldsCommand{Definitions: smaller, Replace: true})
	require.NoError(t, err)
	assert.True(t, saved)
	defs, _ = dir.LoadFieldDefinitions(ctx)
	assert.Len(t, defs, 2)
}

func TestSeedFields_RejectsCollidingSynonyms(t *testing.T) {
	dir := testutil.NewDirectory()
	h := NewSeedFieldsHandler(dir, quietLogger())

	defs := []student.FieldDefinition{
		{Name: student.FieldGivenNames, Classification: student.ClassPrimary, Synonyms: []string{"Name"}},
		{Name: student.FieldFamilyName, Classification: student.ClassPrimary, Synonyms: []string{"name"}},
	}
	saved, err := h.Handle(context.Background(), SeedFieldsCommand{Definitions: defs, Replace: true})
	assert.False(t, saved)
	assert.True(t, shared.IsAmbiguousSynonym(err))

	stored, _ := dir.LoadFieldDefinitions(context.Background())
	assert.Empty(t, stored)
}
