package resolution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILER
// ══════════════════════════════════════════════════════════════════════════════

// DefaultAdmissionYear подставляется новым студентам без года в строке.
const DefaultAdmissionYear = 2025

// Reconciler проводит строки импорта через сопоставление и пишет результат.
// Один экземпляр обслуживает один прогон за раз; параллельные прогоны
// должен разводить вызывающий код.
type Reconciler struct {
	registry    *Registry
	snapshots   student.Snapshotter
	writer      student.Writer
	logger      *slog.Logger
	dryRun      bool
	defaultYear int
	now         func() time.Time
	newID       func() shared.StudentID
}

// Option настраивает Reconciler.
type Option func(*Reconciler)

// WithLogger задаёт логгер.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// WithDryRun отключает запись: отчёт считается так, как если бы всё записалось.
func WithDryRun(dry bool) Option {
	return func(r *Reconciler) { r.dryRun = dry }
}

// WithDefaultAdmissionYear задаёт год поступления по умолчанию.
func WithDefaultAdmissionYear(year int) Option {
	return func(r *Reconciler) { r.defaultYear = year }
}

// WithClock подменяет часы (для тестов).
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithIDGenerator подменяет генератор ID (для тестов).
func WithIDGenerator(gen func() shared.StudentID) Option {
	return func(r *Reconciler) { r.newID = gen }
}

// NewReconciler создаёт Reconciler.
func NewReconciler(registry *Registry, snapshots student.Snapshotter, writer student.Writer, opts ...Option) *Reconciler {
	r := &Reconciler{
		registry:    registry,
		snapshots:   snapshots,
		writer:      writer,
		logger:      slog.Default(),
		defaultYear: DefaultAdmissionYear,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       func() shared.StudentID { return shared.StudentID(uuid.NewString()) },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// run - состояние одного прогона.
type run struct {
	report   *Report
	working  []*student.Student
	position map[shared.StudentID]int
	created  map[shared.StudentID]bool
	groups   map[shared.StudentID]*DuplicateGroup
	order    []shared.StudentID
}

// Run обрабатывает строки строго по порядку за один проход.
//
// Ошибка возвращается только если не удалось прочитать снимок справочника
// или контекст отменён; ошибки отдельных строк попадают в отчёт.
func (r *Reconciler) Run(ctx context.Context, rows []ImportRow) (*Report, error) {
	runID := uuid.NewString()
	ctx = student.WithChangeSource(ctx, "import:"+runID)

	st := &run{
		report: &Report{
			RunID:     runID,
			DryRun:    r.dryRun,
			StartedAt: r.now(),
			Rows:      len(rows),
		},
		position: make(map[shared.StudentID]int),
		created:  make(map[shared.StudentID]bool),
		groups:   make(map[shared.StudentID]*DuplicateGroup),
	}

	snapshot, err := r.snapshots.LoadStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load directory snapshot: %w", err)
	}
	st.working = make([]*student.Student, len(snapshot))
	for i, s := range snapshot {
		st.working[i] = s
		st.position[s.ID] = i
	}

	log := r.logger.With(slog.String("run_id", runID), slog.Bool("dry_run", r.dryRun))
	log.Info("reconciliation started", slog.Int("rows", len(rows)), slog.Int("students", len(snapshot)))

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			r.finish(st)
			return st.report, err
		}
		r.processRow(ctx, log, st, row)
	}

	r.finish(st)
	log.Info("reconciliation finished",
		slog.Int("created", st.report.Created),
		slog.Int("updated", st.report.Updated),
		slog.Int("ambiguous", len(st.report.Ambiguous)),
		slog.Int("duplicates", len(st.report.Duplicates)),
		slog.Int("failed", len(st.report.Failed)),
	)
	return st.report, nil
}

func (r *Reconciler) processRow(ctx context.Context, log *slog.Logger, st *run, row ImportRow) {
	resolved := r.registry.ResolveRow(row)
	st.report.addUnmapped(resolved.Unmapped)
	st.report.Issues = append(st.report.Issues, resolved.Issues...)

	p := resolved.Patch
	if p.IsEmpty() {
		st.report.Skipped++
		return
	}

	m := MatchRow(p, st.working)
	log.Debug("row matched",
		slog.Int("row", row.Position),
		slog.String("outcome", m.Kind().String()),
		slog.String("key", string(m.Key())),
	)

	switch m.Kind() {
	case student.MatchNone:
		r.create(ctx, log, st, row.Position, p)
	case student.MatchUnique:
		id, _ := m.ID()
		r.update(ctx, log, st, row.Position, id, p)
	case student.MatchAmbiguous:
		st.report.Ambiguous = append(st.report.Ambiguous, AmbiguousRow{
			Row:        row.Position,
			Name:       p.FullName(),
			Key:        m.Key(),
			Candidates: m.Candidates(),
		})
	}
}

func (r *Reconciler) create(ctx context.Context, log *slog.Logger, st *run, pos int, p student.Patch) {
	s, err := student.NewStudent(student.NewStudentParams{
		ID:                   r.newID(),
		Patch:                p,
		DefaultAdmissionYear: r.defaultYear,
		Now:                  r.now(),
	})
	if err != nil {
		r.fail(log, st, pos, p.FullName(), err)
		return
	}
	if owner := handleOwner(st.working, s.TelegramHandle, ""); owner != nil {
		r.fail(log, st, pos, p.FullName(), handleTakenError(s.TelegramHandle, owner))
		return
	}
	if err := s.Validate(); err != nil {
		r.fail(log, st, pos, p.FullName(), err)
		return
	}

	if !r.dryRun {
		id, err := r.writer.Create(ctx, s)
		if err != nil {
			r.fail(log, st, pos, p.FullName(), err)
			return
		}
		s.ID = id
	}

	st.position[s.ID] = len(st.working)
	st.working = append(st.working, s)
	st.created[s.ID] = true
	st.report.Created++
	st.report.CreatedIDs = append(st.report.CreatedIDs, s.ID)

	r.track(st, s, pos, (&student.Student{}).Apply(p))
}

func (r *Reconciler) update(ctx context.Context, log *slog.Logger, st *run, pos int, id shared.StudentID, p student.Patch) {
	current := st.working[st.position[id]]
	next := current.Clone()
	changes := next.Apply(p)

	if len(changes) == 0 {
		st.report.Unchanged++
		r.track(st, current, pos, nil)
		return
	}

	if owner := handleOwner(st.working, next.TelegramHandle, id); owner != nil {
		r.fail(log, st, pos, p.FullName(), handleTakenError(next.TelegramHandle, owner))
		return
	}
	if err := next.Validate(); err != nil {
		r.fail(log, st, pos, p.FullName(), err)
		return
	}
	next.UpdatedAt = r.now()

	if !r.dryRun {
		if err := r.writer.Update(ctx, next, changes); err != nil {
			r.fail(log, st, pos, p.FullName(), err)
			return
		}
	}

	st.working[st.position[id]] = next
	if !st.created[id] {
		st.report.Updated++
	}
	r.track(st, next, pos, changes)
}

// track запоминает строку за студентом; вторая и последующие строки
// превращают запись в группу дубликатов.
func (r *Reconciler) track(st *run, s *student.Student, pos int, changes []student.FieldChange) {
	g, ok := st.groups[s.ID]
	if !ok {
		g = &DuplicateGroup{StudentID: s.ID}
		st.groups[s.ID] = g
		st.order = append(st.order, s.ID)
	}
	g.Name = s.FullName()
	g.Rows = append(g.Rows, pos)
	for _, c := range changes {
		g.Trace = append(g.Trace, Overwrite{Row: pos, Field: c.Field, Old: c.Old, New: c.New})
	}
}

func (r *Reconciler) fail(log *slog.Logger, st *run, pos int, name string, err error) {
	log.Warn("row failed", slog.Int("row", pos), slog.String("error", err.Error()))
	st.report.Failed = append(st.report.Failed, FailedRow{Row: pos, Name: name, Reason: err.Error()})
}

// finish собирает группы дубликатов в порядке первого появления студента.
func (r *Reconciler) finish(st *run) {
	st.report.Duplicates = nil
	for _, id := range st.order {
		if g := st.groups[id]; len(g.Rows) > 1 {
			st.report.Duplicates = append(st.report.Duplicates, *g)
		}
	}
	st.report.FinishedAt = r.now()
}

func handleOwner(students []*student.Student, h shared.TelegramHandle, self shared.StudentID) *student.Student {
	if h.IsEmpty() {
		return nil
	}
	for _, s := range students {
		if s.ID != self && !s.TelegramHandle.IsEmpty() && s.TelegramHandle.Key() == h.Key() {
			return s
		}
	}
	return nil
}

func handleTakenError(h shared.TelegramHandle, owner *student.Student) error {
	return shared.WrapError("directory", "Save", shared.ErrAlreadyExists,
		fmt.Sprintf("telegram handle %s already belongs to %s", h, owner.FullName()), shared.ErrTelegramHandleTaken)
}
