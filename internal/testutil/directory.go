// Package testutil provides in-memory fakes and fixtures shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/domain/student"
)

// Directory is an in-memory student.Repository and student.FieldCatalog.
type Directory struct {
	mu       sync.Mutex
	students []*student.Student
	fields   []student.FieldDefinition
	changes  []RecordedChange
	seq      int

	// FailCreate, when set, is consulted before every Create.
	FailCreate func(s *student.Student) error
	// FailUpdate, when set, is consulted before every Update.
	FailUpdate func(s *student.Student) error
	// LoadErr is returned by LoadStudents when non-nil.
	LoadErr error

	Creates int
	Updates int
	Loads   int
}

// RecordedChange is one audit entry written by Update.
type RecordedChange struct {
	StudentID shared.StudentID
	Source    string
	Change    student.FieldChange
}

// NewDirectory returns a fake seeded with clones of the given students.
func NewDirectory(students ...*student.Student) *Directory {
	d := &Directory{}
	for _, s := range students {
		d.students = append(d.students, s.Clone())
	}
	return d
}

// LoadStudents returns clones ordered the way the Postgres repository orders them.
func (d *Directory) LoadStudents(_ context.Context) ([]*student.Student, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Loads++
	if d.LoadErr != nil {
		return nil, d.LoadErr
	}
	out := make([]*student.Student, 0, len(d.students))
	for _, s := range d.students {
		out = append(out, s.Clone())
	}
	return out, nil
}

// GetByID returns a clone of the stored student.
func (d *Directory) GetByID(_ context.Context, id shared.StudentID) (*student.Student, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.students {
		if s.ID == id {
			return s.Clone(), nil
		}
	}
	return nil, shared.ErrStudentNotFound
}

// Count returns the number of stored students.
func (d *Directory) Count(_ context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.students), nil
}

// Create stores a clone; an empty ID gets a sequential one.
func (d *Directory) Create(_ context.Context, s *student.Student) (shared.StudentID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailCreate != nil {
		if err := d.FailCreate(s); err != nil {
			return "", err
		}
	}
	if err := d.checkHandle(s); err != nil {
		return "", err
	}
	c := s.Clone()
	if c.ID.IsEmpty() {
		d.seq++
		c.ID = shared.StudentID(fmt.Sprintf("00000000-0000-4000-8000-%012d", d.seq))
	}
	d.students = append(d.students, c)
	d.Creates++
	return c.ID, nil
}

// Update replaces the stored record and appends the audit entries.
func (d *Directory) Update(ctx context.Context, s *student.Student, changes []student.FieldChange) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailUpdate != nil {
		if err := d.FailUpdate(s); err != nil {
			return err
		}
	}
	if err := d.checkHandle(s); err != nil {
		return err
	}
	for i, cur := range d.students {
		if cur.ID != s.ID {
			continue
		}
		d.students[i] = s.Clone()
		for _, c := range changes {
			d.changes = append(d.changes, RecordedChange{StudentID: s.ID, Source: student.ChangeSource(ctx), Change: c})
		}
		d.Updates++
		return nil
	}
	return shared.ErrStudentNotFound
}

// Changes returns the audit log written so far.
func (d *Directory) Changes() []RecordedChange {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]RecordedChange(nil), d.changes...)
}

// Students returns clones in insertion order.
func (d *Directory) Students() []*student.Student {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*student.Student, 0, len(d.students))
	for _, s := range d.students {
		out = append(out, s.Clone())
	}
	return out
}

// FindByName returns the first student whose full name equals name.
func (d *Directory) FindByName(name string) *student.Student {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.students {
		if s.FullName() == name {
			return s.Clone()
		}
	}
	return nil
}

// LoadFieldDefinitions returns the stored catalogue.
func (d *Directory) LoadFieldDefinitions(_ context.Context) ([]student.FieldDefinition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]student.FieldDefinition(nil), d.fields...), nil
}

// SaveFieldDefinitions replaces the catalogue.
func (d *Directory) SaveFieldDefinitions(_ context.Context, defs []student.FieldDefinition) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fields = append([]student.FieldDefinition(nil), defs...)
	return nil
}

func (d *Directory) checkHandle(s *student.Student) error {
	if s.TelegramHandle.IsEmpty() {
		return nil
	}
	for _, other := range d.students {
		if other.ID != s.ID && other.TelegramHandle.Key() == s.TelegramHandle.Key() {
			return shared.ErrTelegramHandleTaken
		}
	}
	return nil
}
