package command

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbcub/studentdir/internal/domain/resolution"
	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/domain/student"
	"github.com/jbcub/studentdir/internal/testutil"
)

type importRecorder struct {
	mu      sync.Mutex
	reports []*resolution.Report
}

func (r *importRecorder) ObserveImport(rep *resolution.Report, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
}

type busyLock struct{}

func (busyLock) TryAcquire(context.Context) (func(), bool, error) { return nil, false, nil }

type heldLock struct {
	acquired int
	released int
}

func (l *heldLock) TryAcquire(context.Context) (func(), bool, error) {
	l.acquired++
	return func() { l.released++ }, true, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func importRow(pos int, kv ...string) resolution.ImportRow {
	row := resolution.ImportRow{Position: pos}
	for i := 0; i+1 < len(kv); i += 2 {
		row.Cells = append(row.Cells, resolution.Cell{Label: kv[i], Value: kv[i+1]})
	}
	return row
}

func seededDirectory(t *testing.T, students ...*student.Student) *testutil.Directory {
	t.Helper()
	dir := testutil.NewDirectory(students...)
	require.NoError(t, dir.SaveFieldDefinitions(context.Background(), testutil.Fields()))
	return dir
}

func newImportHandler(dir *testutil.Directory, lock ImportLock, reports ReportStore, observer ImportObserver) *ImportStudentsHandler {
	return NewImportStudentsHandler(dir, dir, lock, reports, observer, ImportStudentsConfig{
		DefaultAdmissionYear: 2025,
		Logger:               quietLogger(),
	})
}

func TestImportStudents_CreatesUpdatesAndStoresReport(t *testing.T) {
	anna := testutil.NewStudent("00000000-0000-4000-8000-000000000001", "Anna", "Ivanova",
		testutil.WithEmails("anna@example.com"))
	dir := seededDirectory(t, anna)
	reports := NewMemoryReportStore()
	rec := &importRecorder{}
	lock := &heldLock{}
	h := newImportHandler(dir, lock, reports, rec)

	report, err := h.Handle(context.Background(), ImportStudentsCommand{
		Rows: []resolution.ImportRow{
			importRow(2, "First name", "Anna", "Last name", "Ivanova", "CUB Email", "anna@example.com", "Citizenship", "Kazakhstan"),
			importRow(3, "First name", "Boris", "Last name", "Petrov", "Calc I", "91"),
		},
		ChatID:      42,
		RequestedBy: "telegram:1",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, "Kazakhstan", dir.FindByName("Anna Ivanova").Country)
	grade, ok := dir.FindByName("Boris Petrov").Grade("Calculus")
	assert.True(t, ok)
	assert.Equal(t, 91, grade)

	stored, err := reports.LastReport(context.Background(), 42)
	require.NoError(t, err)
	assert.Same(t, report, stored)

	require.Len(t, rec.reports, 1)
	assert.Same(t, report, rec.reports[0])
	assert.Equal(t, 1, lock.acquired)
	assert.Equal(t, 1, lock.released)

	for _, c := range dir.Changes() {
		assert.Equal(t, "import:"+report.RunID, c.Source)
	}
}

func TestImportStudents_SynonymCollisionAbortsBeforeRows(t *testing.T) {
	dir := testutil.NewDirectory()
	fields := append(testutil.Fields(), student.FieldDefinition{
		Name:           "grant_type",
		Classification: student.ClassOthers,
		Synonyms:       []string{"Email"},
	})
	require.NoError(t, dir.SaveFieldDefinitions(context.Background(), fields))
	rec := &importRecorder{}
	lock := &heldLock{}
	h := newImportHandler(dir, lock, nil, rec)

	report, err := h.Handle(context.Background(), ImportStudentsCommand{
		Rows: []resolution.ImportRow{importRow(2, "First name", "Anna")},
	})
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, shared.IsAmbiguousSynonym(err))

	var synErr *resolution.AmbiguousSynonymError
	require.ErrorAs(t, err, &synErr)
	require.Len(t, synErr.Conflicts, 1)
	assert.Equal(t, []string{student.FieldEmails, "grant_type"}, synErr.Conflicts[0].Fields)

	assert.Zero(t, dir.Loads, "snapshot must not be read")
	assert.Zero(t, dir.Creates)
	assert.Zero(t, dir.Updates)
	assert.Zero(t, lock.acquired)
	require.Len(t, rec.reports, 1)
	assert.Nil(t, rec.reports[0], "aborted import is observed without a report")
}

func TestImportStudents_RejectsEmptyFile(t *testing.T) {
	dir := seededDirectory(t)
	h := newImportHandler(dir, nil, nil, nil)

	_, err := h.Handle(context.Background(), ImportStudentsCommand{})
	assert.ErrorIs(t, err, shared.ErrNoImportRows)
}

func TestImportStudents_LockHeldElsewhere(t *testing.T) {
	dir := seededDirectory(t)
	h := newImportHandler(dir, busyLock{}, nil, nil)

	_, err := h.Handle(context.Background(), ImportStudentsCommand{
		Rows: []resolution.ImportRow{importRow(2, "First name", "Anna")},
	})
	assert.ErrorIs(t, err, shared.ErrImportInProgress)
	assert.Zero(t, dir.Loads)
}

func TestImportStudents_LocalMutexSerializesRuns(t *testing.T) {
	dir := seededDirectory(t)
	h := newImportHandler(dir, nil, nil, nil)

	h.local.Lock()
	_, err := h.Handle(context.Background(), ImportStudentsCommand{
		Rows: []resolution.ImportRow{importRow(2, "First name", "Anna")},
	})
	assert.ErrorIs(t, err, shared.ErrImportInProgress)
	h.local.Unlock()

	report, err := h.Handle(context.Background(), ImportStudentsCommand{
		Rows: []resolution.ImportRow{importRow(2, "First name", "Anna")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
}

func TestImportStudents_DryRunWritesNothing(t *testing.T) {
	dir := seededDirectory(t)
	h := newImportHandler(dir, nil, nil, nil)

	report, err := h.Handle(context.Background(), ImportStudentsCommand{
		Rows:   []resolution.ImportRow{importRow(2, "First name", "Anna", "Last name", "Ivanova")},
		DryRun: true,
	})
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Created)
	assert.Zero(t, dir.Creates)
}

func TestImportStudents_SnapshotFailure(t *testing.T) {
	dir := seededDirectory(t)
	dir.LoadErr = errors.New("db down")
	rec := &importRecorder{}
	h := newImportHandler(dir, nil, nil, rec)

	report, err := h.Handle(context.Background(), ImportStudentsCommand{
		Rows: []resolution.ImportRow{importRow(2, "First name", "Anna")},
	})
	require.Error(t, err)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, dir.LoadErr)
	require.Len(t, rec.reports, 1)
	assert.Nil(t, rec.reports[0])
}
