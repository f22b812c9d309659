package resolution

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// FIELD REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

// Registry сопоставляет внешние названия столбцов каноничным полям.
// Таблица строится один раз на прогон и дальше только читается.
type Registry struct {
	defs   map[string]student.FieldDefinition
	order  []string
	lookup map[string]string
}

// SynonymConflict - метка, на которую претендуют несколько полей.
type SynonymConflict struct {
	Label  string
	Fields []string
}

// AmbiguousSynonymError возвращается, если таблица синонимов не является
// разбиением: одна метка ведёт к двум каноничным полям.
type AmbiguousSynonymError struct {
	Conflicts []SynonymConflict
}

// Error implements the error interface.
func (e *AmbiguousSynonymError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, fmt.Sprintf("%q -> %s", c.Label, strings.Join(c.Fields, ", ")))
	}
	return "ambiguous synonym: " + strings.Join(parts, "; ")
}

// Is позволяет проверять ошибку через errors.Is(err, shared.ErrAmbiguousSynonym).
func (e *AmbiguousSynonymError) Is(target error) bool {
	return target == shared.ErrAmbiguousSynonym
}

// NormalizeLabel приводит название столбца к ключу таблицы синонимов.
// Подчёркивания считаются пробелами: "given_names" и "Given Names" совпадают.
func NormalizeLabel(label string) string {
	return student.NormalizeText(strings.ReplaceAll(label, "_", " "))
}

// NewRegistry строит таблицу синонимов. Каноничное имя поля всегда
// является и его синонимом. Возвращает *AmbiguousSynonymError со всеми
// конфликтами сразу, чтобы каталог можно было исправить за один проход.
func NewRegistry(defs []student.FieldDefinition) (*Registry, error) {
	r := &Registry{
		defs:   make(map[string]student.FieldDefinition, len(defs)),
		lookup: make(map[string]string),
	}

	claims := make(map[string][]string)
	var labels []string
	claim := func(label, field string) {
		key := NormalizeLabel(label)
		if key == "" {
			return
		}
		for _, f := range claims[key] {
			if f == field {
				return
			}
		}
		if len(claims[key]) == 0 {
			labels = append(labels, key)
		}
		claims[key] = append(claims[key], field)
	}

	var dupes []SynonymConflict
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, exists := r.defs[d.Name]; exists {
			dupes = append(dupes, SynonymConflict{Label: NormalizeLabel(d.Name), Fields: []string{d.Name, d.Name}})
			continue
		}
		r.defs[d.Name] = d
		r.order = append(r.order, d.Name)

		claim(d.Name, d.Name)
		for _, syn := range d.Synonyms {
			claim(syn, d.Name)
		}
	}

	conflicts := dupes
	for _, key := range labels {
		fields := claims[key]
		if len(fields) > 1 {
			sorted := append([]string(nil), fields...)
			sort.Strings(sorted)
			conflicts = append(conflicts, SynonymConflict{Label: key, Fields: sorted})
			continue
		}
		r.lookup[key] = fields[0]
	}
	if len(conflicts) > 0 {
		return nil, &AmbiguousSynonymError{Conflicts: conflicts}
	}

	return r, nil
}

// Resolve возвращает каноничное поле для метки; ok=false означает Unmapped.
func (r *Registry) Resolve(label string) (student.FieldDefinition, bool) {
	name, ok := r.lookup[NormalizeLabel(label)]
	if !ok {
		return student.FieldDefinition{}, false
	}
	return r.defs[name], true
}

// Definition возвращает описание поля по каноничному имени.
func (r *Registry) Definition(name string) (student.FieldDefinition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Definitions возвращает описания в порядке каталога.
func (r *Registry) Definitions() []student.FieldDefinition {
	out := make([]student.FieldDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name])
	}
	return out
}

// Len возвращает количество каноничных полей.
func (r *Registry) Len() int {
	return len(r.order)
}
