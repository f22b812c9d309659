package query

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/domain/student"
	"github.com/jbcub/studentdir/internal/testutil"
)

type searchRecorder struct {
	outcomes []string
}

func (r *searchRecorder) ObserveSearch(outcome string, _ time.Duration) {
	r.outcomes = append(r.outcomes, outcome)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func uuidFor(n int) string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", n)
}

func directoryFixture() *testutil.Directory {
	boris := testutil.NewStudent(uuidFor(3), "Boris", "Petrov",
		testutil.WithEmails("boris@example.com"),
		testutil.WithHandle("@boris"),
		testutil.WithSecret("owes a library book"),
		testutil.WithCourse("Calculus", 87),
	)
	boris.Extra["matriculation_number"] = "30001"

	dir := testutil.NewDirectory(
		testutil.NewStudent(uuidFor(1), "Anna", "Ivanova"),
		testutil.NewStudent(uuidFor(2), "Anna Maria", "Kim"),
		boris,
	)
	_ = dir.SaveFieldDefinitions(context.Background(), testutil.Fields())
	return dir
}

func TestSearchStudents_UniqueMatchReturnsCard(t *testing.T) {
	dir := directoryFixture()
	rec := &searchRecorder{}
	h := NewSearchStudentsHandler(dir, dir, rec, quietLogger())

	res, err := h.Handle(context.Background(), SearchStudentsQuery{Text: "  boris PETROV "})
	require.NoError(t, err)

	assert.Equal(t, OutcomeUnique, res.Outcome)
	require.NotNil(t, res.Card)
	assert.Equal(t, "Boris Petrov", res.Card.FullName)
	assert.Equal(t, "@boris", res.Card.TelegramHandle)
	assert.Equal(t, []CourseDTO{{Name: "Calculus", Grade: 87}}, res.Card.Courses)
	assert.Equal(t, []OtherFieldDTO{{Label: "Matriculation Num.", Value: "30001"}}, res.Card.Others)
	assert.Empty(t, res.Card.SecretComment, "secret comment is for admins only")
	assert.Equal(t, []string{"unique"}, rec.outcomes)
}

func TestSearchStudents_SecretCommentForAdmins(t *testing.T) {
	dir := directoryFixture()
	h := NewSearchStudentsHandler(dir, nil, nil, quietLogger())

	res, err := h.Handle(context.Background(), SearchStudentsQuery{Text: "Petrov", IncludeSecret: true})
	require.NoError(t, err)
	require.NotNil(t, res.Card)
	assert.Equal(t, "owes a library book", res.Card.SecretComment)
	assert.Equal(t, "Matriculation Number", res.Card.Others[0].Label, "without a catalogue the field name is humanized")
}

func TestSearchStudents_AmbiguousListsCandidatesInIndexOrder(t *testing.T) {
	dir := directoryFixture()
	h := NewSearchStudentsHandler(dir, dir, nil, quietLogger())

	res, err := h.Handle(context.Background(), SearchStudentsQuery{Text: "Anna"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeAmbiguous, res.Outcome)
	assert.Nil(t, res.Card)
	assert.Equal(t, 2, res.Total)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, "Anna Ivanova", res.Candidates[0].FullName)
	assert.Equal(t, "Anna Maria Kim", res.Candidates[1].FullName)
}

func TestSearchStudents_CandidateLimit(t *testing.T) {
	var students []*student.Student
	for i := 1; i <= 12; i++ {
		students = append(students, testutil.NewStudent(uuidFor(i), "Dana", fmt.Sprintf("Family%02d", i)))
	}
	dir := testutil.NewDirectory(students...)
	h := NewSearchStudentsHandler(dir, nil, nil, quietLogger())

	res, err := h.Handle(context.Background(), SearchStudentsQuery{Text: "dana"})
	require.NoError(t, err)
	assert.Equal(t, 12, res.Total)
	assert.Len(t, res.Candidates, DefaultCandidateLimit)
}

func TestSearchStudents_NoMatch(t *testing.T) {
	dir := directoryFixture()
	rec := &searchRecorder{}
	h := NewSearchStudentsHandler(dir, dir, rec, quietLogger())

	res, err := h.Handle(context.Background(), SearchStudentsQuery{Text: "Zhanna"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNone, res.Outcome)
	assert.Zero(t, res.Total)
	assert.Equal(t, []string{"none"}, rec.outcomes)
}

func TestSearchStudents_EmptyQuery(t *testing.T) {
	dir := directoryFixture()
	h := NewSearchStudentsHandler(dir, dir, nil, quietLogger())

	_, err := h.Handle(context.Background(), SearchStudentsQuery{Text: "   "})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.Zero(t, dir.Loads, "validation happens before reading the directory")
}

func TestSearchStudents_SnapshotFailure(t *testing.T) {
	dir := directoryFixture()
	dir.LoadErr = errors.New("connection reset")
	rec := &searchRecorder{}
	h := NewSearchStudentsHandler(dir, dir, rec, quietLogger())

	_, err := h.Handle(context.Background(), SearchStudentsQuery{Text: "Anna"})
	require.Error(t, err)
	assert.ErrorIs(t, err, dir.LoadErr)
	assert.Equal(t, []string{"error"}, rec.outcomes)
}

func TestGetStudentCard(t *testing.T) {
	dir := directoryFixture()
	h := NewGetStudentCardHandler(dir, dir)
	ctx := context.Background()

	card, err := h.Handle(ctx, GetStudentCardQuery{StudentID: uuidFor(3)})
	require.NoError(t, err)
	assert.Equal(t, "Boris Petrov", card.FullName)

	_, err = h.Handle(ctx, GetStudentCardQuery{StudentID: uuidFor(99)})
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)

	_, err = h.Handle(ctx, GetStudentCardQuery{StudentID: "not-an-id"})
	assert.ErrorIs(t, err, shared.ErrInvalidID)
}
