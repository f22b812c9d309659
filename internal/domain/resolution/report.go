package resolution

import (
	"time"

	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILIATION REPORT
// ══════════════════════════════════════════════════════════════════════════════

// Report - итог одного прогона импорта. Отчёт возвращается всегда,
// даже если часть строк не удалось обработать.
type Report struct {
	RunID      string    `json:"run_id"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Rows - количество строк на входе.
	Rows int `json:"rows"`

	// Created - создано новых студентов.
	Created int `json:"created"`

	// Updated - сколько строк записали изменения в уже существовавших студентов.
	Updated int `json:"updated"`

	// Unchanged - строки, совпавшие со студентом без изменений.
	Unchanged int `json:"unchanged"`

	// Skipped - полностью пустые строки.
	Skipped int `json:"skipped"`

	CreatedIDs []shared.StudentID `json:"created_ids,omitempty"`
	Duplicates []DuplicateGroup   `json:"duplicates,omitempty"`
	Ambiguous  []AmbiguousRow     `json:"ambiguous,omitempty"`
	Failed     []FailedRow        `json:"failed,omitempty"`
	Issues     []FieldIssue       `json:"issues,omitempty"`
	Unmapped   []string           `json:"unmapped,omitempty"`
}

// DuplicateGroup - несколько строк одного прогона, попавших в одного студента.
type DuplicateGroup struct {
	StudentID shared.StudentID `json:"student_id"`
	Name      string           `json:"name"`
	Rows      []int            `json:"rows"`
	Trace     []Overwrite      `json:"trace,omitempty"`
}

// Overwrite - изменение поля, внесённое конкретной строкой.
type Overwrite struct {
	Row   int    `json:"row"`
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// AmbiguousRow - строка, которую нельзя отнести к одному студенту.
type AmbiguousRow struct {
	Row        int                `json:"row"`
	Name       string             `json:"name"`
	Key        student.MatchKey   `json:"key"`
	Candidates []shared.StudentID `json:"candidates"`
}

// FailedRow - строка, не записанная из-за ошибки.
type FailedRow struct {
	Row    int    `json:"row"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

// HasProblems возвращает true, если отчёт требует внимания администратора.
func (r *Report) HasProblems() bool {
	return len(r.Ambiguous) > 0 || len(r.Failed) > 0 || len(r.Duplicates) > 0 || len(r.Issues) > 0
}

// Duration возвращает длительность прогона.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Group возвращает группу дубликатов для студента.
func (r *Report) Group(id shared.StudentID) (DuplicateGroup, bool) {
	for _, g := range r.Duplicates {
		if g.StudentID == id {
			return g, true
		}
	}
	return DuplicateGroup{}, false
}

func (r *Report) addUnmapped(labels []string) {
	for _, l := range labels {
		known := false
		for _, u := range r.Unmapped {
			if u == l {
				known = true
				break
			}
		}
		if !known {
			r.Unmapped = append(r.Unmapped, l)
		}
	}
}
