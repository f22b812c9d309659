package student

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jbcub/studentdir/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// Student - запись справочника, которую находит поиск и сверяет импорт.
type Student struct {
	// ID - внутренний уникальный идентификатор (UUID в строковом формате).
	ID shared.StudentID

	// GivenNames - упорядоченный набор имён (минимум одно).
	GivenNames []string

	// FamilyName - фамилия.
	FamilyName string

	// Emails - адреса в нижнем регистре, без повторов.
	// Уникальность между студентами не требуется: совпадения дают неоднозначность.
	Emails []string

	// TelegramHandle - "@username", уникален среди студентов, если задан.
	TelegramHandle shared.TelegramHandle

	// TelegramID - числовой идентификатор в Telegram (0, если неизвестен).
	TelegramID shared.TelegramID

	// Aliases - дополнительные имена, по которым студента ищут.
	Aliases []string

	// AdmissionYear - год поступления.
	AdmissionYear int

	// Scholarship - есть ли стипендия/грант.
	Scholarship bool

	// Country - гражданство.
	Country string

	// PublicComment виден всем пользователям бота.
	PublicComment string

	// SecretComment виден только администраторам.
	SecretComment string

	// Courses - курсы с оценками, в порядке добавления.
	Courses []Course

	// Extra - дополнительные поля по каноничному имени (классификация "others").
	Extra map[string]string

	// CreatedAt - время создания записи.
	CreatedAt time.Time

	// UpdatedAt - время последнего обновления.
	UpdatedAt time.Time
}

// Course - оценка студента по курсу.
type Course struct {
	Name  string
	Grade int
}

// FieldChange - одно изменённое поле: старое и новое значение в текстовом виде.
type FieldChange struct {
	Field string
	Old   string
	New   string
}

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY
// ══════════════════════════════════════════════════════════════════════════════

// NewStudentParams содержит параметры для создания нового студента.
type NewStudentParams struct {
	ID    shared.StudentID
	Patch Patch

	// DefaultAdmissionYear подставляется, если в строке импорта года нет.
	DefaultAdmissionYear int

	Now time.Time
}

// NewStudent создаёт студента из значений строки импорта.
// Возвращает ErrMissingGivenName, если в строке нет ни одного имени.
func NewStudent(params NewStudentParams) (*Student, error) {
	if params.ID.IsEmpty() {
		return nil, shared.NewDomainError("directory", "Create", shared.ErrInvalidID, "student id is required")
	}

	p := params.Patch
	if len(p.GivenNames) == 0 {
		return nil, shared.ErrMissingGivenName
	}

	now := params.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s := &Student{
		ID:             params.ID,
		GivenNames:     slices.Clone(p.GivenNames),
		FamilyName:     p.FamilyName,
		Emails:         unionFold(nil, p.Emails),
		TelegramHandle: p.TelegramHandle,
		TelegramID:     p.TelegramID,
		Aliases:        unionFold(nil, p.Aliases),
		AdmissionYear:  p.AdmissionYear,
		Country:        p.Country,
		PublicComment:  p.PublicComment,
		SecretComment:  p.SecretComment,
		Courses:        slices.Clone(p.Courses),
		Extra:          make(map[string]string, len(p.Extra)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if p.Scholarship != nil {
		s.Scholarship = *p.Scholarship
	}
	if s.AdmissionYear == 0 {
		s.AdmissionYear = params.DefaultAdmissionYear
	}
	for k, v := range p.Extra {
		s.Extra[k] = v
	}

	return s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS
// ══════════════════════════════════════════════════════════════════════════════

// FullName возвращает "Имена Фамилия" для отображения.
func (s *Student) FullName() string {
	parts := append(slices.Clone(s.GivenNames), s.FamilyName)
	return strings.TrimSpace(strings.Join(strings.Fields(strings.Join(parts, " ")), " "))
}

// NameTokens возвращает токены имён и фамилии (без алиасов).
func (s *Student) NameTokens() []string {
	parts := append(slices.Clone(s.GivenNames), s.FamilyName)
	return NameTokens(parts...)
}

// HasEmail проверяет, принадлежит ли адрес студенту.
func (s *Student) HasEmail(email string) bool {
	return slices.Contains(s.Emails, shared.NormalizeEmail(email))
}

// Grade возвращает оценку по курсу (сравнение без учёта регистра).
func (s *Student) Grade(course string) (int, bool) {
	i := s.courseIndex(course)
	if i < 0 {
		return 0, false
	}
	return s.Courses[i].Grade, true
}

// Clone возвращает глубокую копию, чтобы сверка могла менять запись,
// не трогая снимок до успешной записи в хранилище.
func (s *Student) Clone() *Student {
	c := *s
	c.GivenNames = slices.Clone(s.GivenNames)
	c.Emails = slices.Clone(s.Emails)
	c.Aliases = slices.Clone(s.Aliases)
	c.Courses = slices.Clone(s.Courses)
	c.Extra = make(map[string]string, len(s.Extra))
	for k, v := range s.Extra {
		c.Extra[k] = v
	}
	return &c
}

// Apply применяет непустые значения из patch и возвращает список реально
// изменённых полей. Пустой результат означает, что запись не изменилась.
//
// Имена, фамилия и скалярные поля заменяются; адреса и алиасы объединяются;
// оценки по курсам обновляются по имени курса; дополнительные поля - по ключу.
func (s *Student) Apply(p Patch) []FieldChange {
	var changes []FieldChange
	record := func(field, from, to string) {
		changes = append(changes, FieldChange{Field: field, Old: from, New: to})
	}

	if len(p.GivenNames) > 0 && !slices.Equal(s.GivenNames, p.GivenNames) {
		record(FieldGivenNames, strings.Join(s.GivenNames, " "), strings.Join(p.GivenNames, " "))
		s.GivenNames = slices.Clone(p.GivenNames)
	}
	if p.FamilyName != "" && p.FamilyName != s.FamilyName {
		record(FieldFamilyName, s.FamilyName, p.FamilyName)
		s.FamilyName = p.FamilyName
	}
	if merged := unionFold(s.Emails, p.Emails); len(merged) != len(s.Emails) {
		record(FieldEmails, strings.Join(s.Emails, ", "), strings.Join(merged, ", "))
		s.Emails = merged
	}
	if !p.TelegramHandle.IsEmpty() && p.TelegramHandle.Key() != s.TelegramHandle.Key() {
		record(FieldTelegramHandle, s.TelegramHandle.String(), p.TelegramHandle.String())
		s.TelegramHandle = p.TelegramHandle
	}
	if p.TelegramID.IsValid() && p.TelegramID != s.TelegramID {
		record(FieldTelegramID, formatTelegramID(s.TelegramID), p.TelegramID.String())
		s.TelegramID = p.TelegramID
	}
	if merged := unionFold(s.Aliases, p.Aliases); len(merged) != len(s.Aliases) {
		record(FieldAliases, strings.Join(s.Aliases, ", "), strings.Join(merged, ", "))
		s.Aliases = merged
	}
	if p.AdmissionYear != 0 && p.AdmissionYear != s.AdmissionYear {
		record(FieldAdmissionYear, formatYear(s.AdmissionYear), strconv.Itoa(p.AdmissionYear))
		s.AdmissionYear = p.AdmissionYear
	}
	if p.Scholarship != nil && *p.Scholarship != s.Scholarship {
		record(FieldScholarship, strconv.FormatBool(s.Scholarship), strconv.FormatBool(*p.Scholarship))
		s.Scholarship = *p.Scholarship
	}
	if p.Country != "" && p.Country != s.Country {
		record(FieldCountry, s.Country, p.Country)
		s.Country = p.Country
	}
	if p.PublicComment != "" && p.PublicComment != s.PublicComment {
		record(FieldPublicComment, s.PublicComment, p.PublicComment)
		s.PublicComment = p.PublicComment
	}
	if p.SecretComment != "" && p.SecretComment != s.SecretComment {
		record(FieldSecretComment, s.SecretComment, p.SecretComment)
		s.SecretComment = p.SecretComment
	}

	for _, c := range p.Courses {
		i := s.courseIndex(c.Name)
		switch {
		case i < 0:
			record(c.Name, "", strconv.Itoa(c.Grade))
			s.Courses = append(s.Courses, c)
		case s.Courses[i].Grade != c.Grade:
			record(s.Courses[i].Name, strconv.Itoa(s.Courses[i].Grade), strconv.Itoa(c.Grade))
			s.Courses[i].Grade = c.Grade
		}
	}

	keys := make([]string, 0, len(p.Extra))
	for k := range p.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := p.Extra[k]
		if v == "" || s.Extra[k] == v {
			continue
		}
		if s.Extra == nil {
			s.Extra = make(map[string]string)
		}
		record(k, s.Extra[k], v)
		s.Extra[k] = v
	}

	return changes
}

// Validate проверяет инварианты записи перед сохранением.
func (s *Student) Validate() error {
	if len(s.GivenNames) == 0 {
		return shared.ErrMissingGivenName
	}
	if !s.TelegramHandle.IsEmpty() && !strings.HasPrefix(s.TelegramHandle.String(), "@") {
		return shared.NewDomainError("directory", "Validate", shared.ErrInvalidFormat, "telegram handle must start with @")
	}
	for _, c := range s.Courses {
		if c.Grade < shared.MinGrade || c.Grade > shared.MaxGrade {
			return shared.ErrInvalidGrade
		}
	}
	return nil
}

func (s *Student) courseIndex(name string) int {
	key := NormalizeText(name)
	for i, c := range s.Courses {
		if NormalizeText(c.Name) == key {
			return i
		}
	}
	return -1
}

// unionFold добавляет к base значения из add, пропуская повторы без учёта регистра.
func unionFold(base, add []string) []string {
	out := slices.Clone(base)
	seen := make(map[string]struct{}, len(base)+len(add))
	for _, v := range base {
		seen[NormalizeText(v)] = struct{}{}
	}
	for _, v := range add {
		k := NormalizeText(v)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

func formatYear(y int) string {
	if y == 0 {
		return ""
	}
	return strconv.Itoa(y)
}

func formatTelegramID(id shared.TelegramID) string {
	if !id.IsValid() {
		return ""
	}
	return fmt.Sprint(int64(id))
}
