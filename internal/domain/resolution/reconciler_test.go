package resolution

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

func newReconciler(t *testing.T, dir *testutil.Directory, opts ...Option) *Reconciler {
	t.Helper()

	reg, err := NewRegistry(testutil.Fields())
	require.NoError(t, err)

	seq := 0
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return testutil.FixedTime }),
		WithIDGenerator(func() shared.StudentID {
			seq++
			return shared.StudentID(fmt.Sprintf("new-%d", seq))
		}),
	}
	return NewReconciler(reg, dir, dir, append(base, opts...)...)
}

func anna() *student.Student {
	return testutil.NewStudent("id-anna", "Anna", "Ivanova",
		testutil.WithEmails("anna@example.com"),
		testutil.WithHandle("@anna_iv"),
		testutil.WithCountry("Kazakhstan"),
	)
}

func TestReconciler_CreatesUnmatchedRows(t *testing.T) {
	dir := testutil.NewDirectory()
	rec := newReconciler(t, dir)

	report, err := rec.Run(context.Background(), []ImportRow{
		row(2, "First name", "Anna", "Last name", "Ivanova", "Email", "ANNA@example.com", "Telegram", "anna_iv"),
		row(3, "First name", "Boris", "Last name", "Petrov", "Year", "2023"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Rows)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 0, report.Updated)
	assert.Equal(t, []shared.StudentID{"new-1", "new-2"}, report.CreatedIDs)
	assert.Empty(t, report.Duplicates)

	a := dir.FindByName("Anna Ivanova")
	require.NotNil(t, a)
	assert.Equal(t, []string{"anna@example.com"}, a.Emails)
	assert.Equal(t, shared.TelegramHandle("@anna_iv"), a.TelegramHandle)
	assert.Equal(t, DefaultAdmissionYear, a.AdmissionYear)

	b := dir.FindByName("Boris Petrov")
	require.NotNil(t, b)
	assert.Equal(t, 2023, b.AdmissionYear)
}

func TestReconciler_EmailMatchUpdatesMismatchedName(t *testing.T) {
	dir := testutil.NewDirectory(anna(), testutil.NewStudent("id-maria", "Maria", "Petrova"))
	rec := newReconciler(t, dir)

	report, err := rec.Run(context.Background(), []ImportRow{
		row(2, "First name", "Anya", "Last name", "Ivanova", "Email", "anna@example.com"),
	})
	require.NoError(t, err)

	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 1, report.Updated)

	got, err := dir.GetByID(context.Background(), "id-anna")
	require.NoError(t, err)
	assert.Equal(t, []string{"Anya"}, got.GivenNames)
	assert.Equal(t, testutil.FixedTime, got.UpdatedAt)

	changes := dir.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, student.FieldChange{Field: student.FieldGivenNames, Old: "Anna", New: "Anya"}, changes[0].Change)
	assert.Equal(t, "import:"+report.RunID, changes[0].Source)
}

func TestReconciler_RoundTripIsNoop(t *testing.T) {
	dir := testutil.NewDirectory(anna())
	rec := newReconciler(t, dir)

	report, err := rec.Run(context.Background(), []ImportRow{
		row(2,
			"First name", "Anna",
			"Last name", "Ivanova",
			"Email", "anna@example.com",
			"Telegram", "@anna_iv",
			"Year", "2024",
			"Citizenship", "Kazakhstan",
		),
	})
	require.NoError(t, err)

	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 0, report.Updated)
	assert.Equal(t, 1, report.Unchanged)
	assert.Equal(t, 0, dir.Updates)
	assert.Empty(t, dir.Changes())
}

func TestReconciler_SecondRunIsIdempotent(t *testing.T) {
	dir := testutil.NewDirectory(anna())
	rows := []ImportRow{
		row(2, "Email", "anna@example.com", "Citizenship", "Germany"),
		row(3, "First name", "Boris", "Last name", "Petrov", "Email", "boris@example.com"),
		row(4, "Email", "anna@example.com", "Citizenship", "France"),
		row(5, "Email", "boris@example.com", "Calc I", "90"),
	}

	first, err := newReconciler(t, dir).Run(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)
	assert.Equal(t, 2, first.Updated)
	assert.Len(t, first.Duplicates, 2)

	second, err := newReconciler(t, dir).Run(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 0, second.Updated)
	assert.Empty(t, second.Failed)

	got, err := dir.GetByID(context.Background(), "id-anna")
	require.NoError(t, err)
	assert.Equal(t, "France", got.Country)
}

func TestReconciler_DuplicateGroupKeepsRowOrder(t *testing.T) {
	dir := testutil.NewDirectory(anna())
	rec := newReconciler(t, dir)

	report, err := rec.Run(context.Background(), []ImportRow{
		row(2, "Email", "anna@example.com", "Citizenship", "Germany"),
		row(3, "Email", "anna@example.com", "Citizenship", "France"),
	})
	require.NoError(t, err)

	got, err := dir.GetByID(context.Background(), "id-anna")
	require.NoError(t, err)
	assert.Equal(t, "France", got.Country)

	assert.Equal(t, 2, report.Updated)
	assert.Equal(t, 2, dir.Updates)
	require.Len(t, report.Duplicates, 1)
	group := report.Duplicates[0]
	assert.Equal(t, shared.StudentID("id-anna"), group.StudentID)
	assert.Equal(t, "Anna Ivanova", group.Name)
	assert.Equal(t, []int{2, 3}, group.Rows)
	assert.Equal(t, []Overwrite{
		{Row: 2, Field: student.FieldCountry, Old: "Kazakhstan", New: "Germany"},
		{Row: 3, Field: student.FieldCountry, Old: "Germany", New: "France"},
	}, group.Trace)
}

func TestReconciler_RevertingRowStillCountsAsUpdate(t *testing.T) {
	dir := testutil.NewDirectory(anna())
	rec := newReconciler(t, dir)

	report, err := rec.Run(context.Background(), []ImportRow{
		row(2, "Email", "anna@example.com", "Citizenship", "Germany"),
		row(3, "Email", "anna@example.com", "Citizenship", "Kazakhstan"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, dir.Updates)
	assert.Equal(t, 2, report.Updated)
	assert.Equal(t, 0, report.Unchanged)
	require.Len(t, report.Duplicates, 1)
	assert.Equal(t, []int{2, 3}, report.Duplicates[0].Rows)

	got, err := dir.GetByID(context.Background(), "id-anna")
	require.NoError(t, err)
	assert.Equal(t, "Kazakhstan", got.Country)
}

func TestReconciler_RowCreatedThenMatchedIsDuplicate(t *testing.T) {
	dir := testutil.NewDirectory()
	rec := newReconciler(t, dir)

	report, err := rec.Run(context.Background(), []ImportRow{
		row(2, "First name", "Boris", "Last name", "Petrov", "Telegram", "@boris_p"),
		row(3, "Telegram", "@BORIS_P", "Citizenship", "Serbia"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 0, report.Updated)
	require.Len(t, report.Duplicates, 1)
	assert.Equal(t, []int{2, 3}, report.Duplicates[0].Rows)
	assert.Contains(t, report.Duplicates[0].Trace, Overwrite{Row: 3, Field: student.FieldCountry, Old: "", New: "Serbia"})
	assert.Contains(t, report.Duplicates[0].Trace, Overwrite{Row: 2, Field: student.FieldFamilyName, Old: "", New: "Petrov"})
}

func TestReconciler_AmbiguousRowIsNotWritten(t *testing.T) {
	dir := testutil.NewDirectory(
		testutil.NewStudent("id-1", "Anna", "Ivanova"),
		testutil.NewStudent("id-2", "Anna", "Petrova"),
	)
	rec := newReconciler(t, dir)

	report, err := rec.Run(context.Background(), []ImportRow{
		row(2, "First name", "Anna", "Citizenship", "Germany"),
	})
	require.NoError(t, err)

	require.Len(t, report.Ambiguous, 1)
	assert.Equal(t, AmbiguousRow{
		Row:        2,
		Name:       "Anna",
		Key:        student.KeyName,
		Candidates: []shared.StudentID{"id-1", "id-2"},
	}, report.Ambiguous[0])
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 0, report.Updated)
	assert.Equal(t, 0, dir.Creates)
	assert.Equal(t, 0, dir.Updates)
	assert.Empty(t, report.Duplicates)
}

func TestReconciler_MalformedRowDoesNotAbortBatch(t *testing.T) {
	dir := testutil.NewDirectory()
	rec := newReconciler(t, dir)

	report, err := rec.Run(context.Background(), []ImportRow{
		row(2, "Last name", "Nobody", "Email", "nobody@example.com"),
		row(3, "First name", "Anna", "Year", "twenty", "Favourite colour", "blue"),
		row(4, "First name", "", "Email", ""),
	})
	require.NoError(t, err)

	require.Len(t, report.Failed, 1)
	assert.Equal(t, 2, report.Failed[0].Row)
	assert.Contains(t, report.Failed[0].Reason, "given name")

	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, []string{"Favourite colour"}, report.Unmapped)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, FieldIssue{Row: 3, Label: "Year", Field: student.FieldAdmissionYear, Value: "twenty", Reason: "admission year must be a four-digit year"}, report.Issues[0])

	created := dir.FindByName("Anna")
	require.NotNil(t, created)
	assert.Equal(t, DefaultAdmissionYear, created.AdmissionYear)
}

func TestReconciler_PersistenceFailureLeavesNoPartialState(t *testing.T) {
	dir := testutil.NewDirectory(anna())
	dir.FailUpdate = func(s *student.Student) error {
		if s.Country == "Germany" {
			return errors.New("connection reset")
		}
		return nil
	}
	rec := newReconciler(t, dir)

	report, err := rec.Run(context.Background(), []ImportRow{
		row(2, "Email", "anna@example.com", "Citizenship", "Germany"),
		row(3, "Email", "anna@example.com", "Citizenship", "France"),
	})
	require.NoError(t, err)

	require.Len(t, report.Failed, 1)
	assert.Equal(t, 2, report.Failed[0].Row)
	assert.Equal(t, "connection reset", report.Failed[0].Reason)
	assert.Equal(t, 1, report.Updated)
	assert.Empty(t, report.Duplicates)

	changes := dir.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, "Kazakhstan", changes[0].Change.Old)
	assert.Equal(t, "France", changes[0].Change.New)
}

func TestReconciler_HandleOwnedByAnotherStudentFails(t *testing.T) {
	dir := testutil.NewDirectory(
		anna(),
		testutil.NewStudent("id-boris", "Boris", "Petrov", testutil.WithEmails("boris@example.com")),
	)
	rec := newReconciler(t, dir)

	report, err := rec.Run(context.Background(), []ImportRow{
		row(2, "Email", "boris@example.com", "Telegram", "@anna_iv"),
	})
	require.NoError(t, err)

	require.Len(t, report.Failed, 1)
	assert.Contains(t, report.Failed[0].Reason, "@anna_iv")
	assert.Equal(t, 0, dir.Updates)
}

func TestReconciler_CoursesAndExtraFields(t *testing.T) {
	dir := testutil.NewDirectory(anna())
	rec := newReconciler(t, dir)

	report, err := rec.Run(context.Background(), []ImportRow{
		row(2, "Email", "anna@example.com", "Calc I", "95", "Matriculation Num.", "30012", "Type of grant", "partial"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)

	got, err := dir.GetByID(context.Background(), "id-anna")
	require.NoError(t, err)
	assert.Equal(t, []student.Course{{Name: "Calculus", Grade: 95}}, got.Courses)
	assert.Equal(t, "30012", got.Extra["matriculation_number"])
	assert.True(t, got.Scholarship)
}

func TestReconciler_DryRunDoesNotWrite(t *testing.T) {
	dir := testutil.NewDirectory(anna())
	rec := newReconciler(t, dir, WithDryRun(true))

	report, err := rec.Run(context.Background(), []ImportRow{
		row(2, "First name", "Boris", "Last name", "Petrov"),
		row(3, "Email", "anna@example.com", "Citizenship", "France"),
		row(4, "First name", "Boris", "Last name", "Petrov", "Citizenship", "Serbia"),
	})
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Updated)
	require.Len(t, report.Duplicates, 1)
	assert.Equal(t, []int{2, 4}, report.Duplicates[0].Rows)
	assert.Equal(t, 0, dir.Creates)
	assert.Equal(t, 0, dir.Updates)
}

func TestReconciler_SnapshotErrorAbortsRun(t *testing.T) {
	dir := testutil.NewDirectory()
	dir.LoadErr = errors.New("database is down")
	rec := newReconciler(t, dir)

	report, err := rec.Run(context.Background(), []ImportRow{row(2, "First name", "Anna")})

	require.Error(t, err)
	assert.Nil(t, report)
	assert.Equal(t, 0, dir.Creates)
}

func TestReconciler_CancelledContextReturnsPartialReport(t *testing.T) {
	dir := testutil.NewDirectory()
	rec := newReconciler(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	dir.FailCreate = func(*student.Student) error {
		cancel()
		return nil
	}

	report, err := rec.Run(ctx, []ImportRow{
		row(2, "First name", "Anna"),
		row(3, "First name", "Boris"),
	})

	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Created)
}
