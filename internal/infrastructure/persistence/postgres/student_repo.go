package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository for PostgreSQL.
type StudentRepository struct {
	conn *Connection
	now  func() time.Time
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{conn: conn, now: time.Now}
}

var _ student.Repository = (*StudentRepository)(nil)

const studentColumns = `
	id, given_names, family_name, emails, telegram_handle, telegram_id, aliases,
	admission_year, scholarship, country, public_comment, secret_comment,
	courses, extra, created_at, updated_at`

// studentSelect mirrors studentColumns with the id read back as text.
const studentSelect = `
	id::text, given_names, family_name, emails, telegram_handle, telegram_id, aliases,
	admission_year, scholarship, country, public_comment, secret_comment,
	courses, extra, created_at, updated_at`

// courseRecord is the JSONB shape of one course grade.
type courseRecord struct {
	Name  string `json:"name"`
	Grade int    `json:"grade"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Snapshot
// ─────────────────────────────────────────────────────────────────────────────

// LoadStudents returns every student ordered by family name, given names and id.
func (r *StudentRepository) LoadStudents(ctx context.Context) ([]*student.Student, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	rows, err := r.conn.Query(ctx, `SELECT `+studentSelect+`
		FROM students
		ORDER BY lower(family_name), given_names, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load students: %w", err)
	}
	defer rows.Close()

	var students []*student.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate students: %w", err)
	}
	return students, nil
}

// GetByID returns a student by id.
func (r *StudentRepository) GetByID(ctx context.Context, id shared.StudentID) (*student.Student, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	row := r.conn.QueryRow(ctx, `SELECT `+studentSelect+` FROM students WHERE id = $1`, id.String())
	s, err := scanStudent(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrStudentNotFound
		}
		return nil, err
	}
	return s, nil
}

// Count returns the total number of students.
func (r *StudentRepository) Count(ctx context.Context) (int, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	var n int
	if err := r.conn.QueryRow(ctx, `SELECT count(*) FROM students`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count students: %w", err)
	}
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// Create inserts a new student and returns its id.
func (r *StudentRepository) Create(ctx context.Context, s *student.Student) (shared.StudentID, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	courses, extra, err := encodeDetails(s)
	if err != nil {
		return "", err
	}

	now := r.now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = now
	}

	_, err = r.conn.Exec(ctx, `
		INSERT INTO students (`+studentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		s.ID.String(),
		nonNil(s.GivenNames),
		s.FamilyName,
		nonNil(s.Emails),
		nullableHandle(s.TelegramHandle),
		nullableTelegramID(s.TelegramID),
		nonNil(s.Aliases),
		s.AdmissionYear,
		s.Scholarship,
		s.Country,
		s.PublicComment,
		s.SecretComment,
		courses,
		extra,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return "", mapWriteError("create", err)
	}
	return s.ID, nil
}

// Update stores the new state of s and appends changes to student_changes
// in the same transaction. The change source is taken from ctx.
func (r *StudentRepository) Update(ctx context.Context, s *student.Student, changes []student.FieldChange) error {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	courses, extra, err := encodeDetails(s)
	if err != nil {
		return err
	}
	s.UpdatedAt = r.now().UTC()
	source := student.ChangeSource(ctx)

	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE students SET
				given_names = $1,
				family_name = $2,
				emails = $3,
				telegram_handle = $4,
				telegram_id = $5,
				aliases = $6,
				admission_year = $7,
				scholarship = $8,
				country = $9,
				public_comment = $10,
				secret_comment = $11,
				courses = $12,
				extra = $13,
				updated_at = $14
			WHERE id = $15`,
			nonNil(s.GivenNames),
			s.FamilyName,
			nonNil(s.Emails),
			nullableHandle(s.TelegramHandle),
			nullableTelegramID(s.TelegramID),
			nonNil(s.Aliases),
			s.AdmissionYear,
			s.Scholarship,
			s.Country,
			s.PublicComment,
			s.SecretComment,
			courses,
			extra,
			s.UpdatedAt,
			s.ID.String(),
		)
		if err != nil {
			return mapWriteError("update", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrStudentNotFound
		}

		if len(changes) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, c := range changes {
			batch.Queue(`
				INSERT INTO student_changes (student_id, field, old_value, new_value, source, changed_at)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				s.ID.String(), c.Field, c.Old, c.New, source, s.UpdatedAt)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to record student changes: %w", err)
		}
		return nil
	})
}

// ChangeRecord is one row of the student_changes audit log.
type ChangeRecord struct {
	Field     string
	Old       string
	New       string
	Source    string
	ChangedAt time.Time
}

// Changes returns the audit log of a student, newest first.
func (r *StudentRepository) Changes(ctx context.Context, id shared.StudentID, limit int) ([]ChangeRecord, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	rows, err := r.conn.Query(ctx, `
		SELECT field, old_value, new_value, source, changed_at
		FROM student_changes
		WHERE student_id = $1
		ORDER BY changed_at DESC, id DESC
		LIMIT $2`, id.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query student changes: %w", err)
	}
	defer rows.Close()

	var out []ChangeRecord
	for rows.Next() {
		var c ChangeRecord
		if err := rows.Scan(&c.Field, &c.Old, &c.New, &c.Source, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan student change: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func scanStudent(row pgx.Row) (*student.Student, error) {
	var (
		s          student.Student
		id         string
		handle     *string
		telegramID *int64
		courses    []byte
		extra      []byte
	)

	err := row.Scan(
		&id,
		&s.GivenNames,
		&s.FamilyName,
		&s.Emails,
		&handle,
		&telegramID,
		&s.Aliases,
		&s.AdmissionYear,
		&s.Scholarship,
		&s.Country,
		&s.PublicComment,
		&s.SecretComment,
		&courses,
		&extra,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan student: %w", err)
	}

	s.ID = shared.StudentID(id)
	if handle != nil {
		s.TelegramHandle = shared.TelegramHandle(*handle)
	}
	if telegramID != nil {
		s.TelegramID = shared.TelegramID(*telegramID)
	}

	var records []courseRecord
	if len(courses) > 0 {
		if err := json.Unmarshal(courses, &records); err != nil {
			return nil, fmt.Errorf("failed to decode courses of %s: %w", id, err)
		}
	}
	for _, c := range records {
		s.Courses = append(s.Courses, student.Course{Name: c.Name, Grade: c.Grade})
	}

	s.Extra = make(map[string]string)
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &s.Extra); err != nil {
			return nil, fmt.Errorf("failed to decode extra fields of %s: %w", id, err)
		}
	}

	return &s, nil
}

func encodeDetails(s *student.Student) (courses, extra []byte, err error) {
	records := make([]courseRecord, 0, len(s.Courses))
	for _, c := range s.Courses {
		records = append(records, courseRecord{Name: c.Name, Grade: c.Grade})
	}
	if courses, err = json.Marshal(records); err != nil {
		return nil, nil, fmt.Errorf("failed to marshal courses: %w", err)
	}

	fields := s.Extra
	if fields == nil {
		fields = map[string]string{}
	}
	if extra, err = json.Marshal(fields); err != nil {
		return nil, nil, fmt.Errorf("failed to marshal extra fields: %w", err)
	}
	return courses, extra, nil
}

// mapWriteError turns the handle unique index violation into the domain error.
func mapWriteError(op string, err error) error {
	if IsUniqueViolation(err) {
		if ConstraintName(err) == "students_telegram_handle_key" {
			return shared.ErrTelegramHandleTaken
		}
		return shared.ErrStudentAlreadyExists
	}
	return fmt.Errorf("failed to %s student: %w", op, err)
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nullableHandle(h shared.TelegramHandle) *string {
	if h.IsEmpty() {
		return nil
	}
	v := h.String()
	return &v
}

func nullableTelegramID(id shared.TelegramID) *int64 {
	if !id.IsValid() {
		return nil
	}
	v := id.Int64()
	return &v
}
