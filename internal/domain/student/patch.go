package student

import (
	"github.com/jbcub/studentdir/internal/domain/shared"
)

// Patch - значения строки импорта, разложенные по атрибутам студента.
// Нулевое значение поля означает «в строке не было», а не «очистить».
type Patch struct {
	GivenNames     []string
	FamilyName     string
	Emails         []string
	TelegramHandle shared.TelegramHandle
	TelegramID     shared.TelegramID
	Aliases        []string
	AdmissionYear  int
	Scholarship    *bool
	Country        string
	PublicComment  string
	SecretComment  string
	Courses        []Course
	Extra          map[string]string
}

// IsEmpty возвращает true, если в строке не оказалось ни одного значения.
func (p Patch) IsEmpty() bool {
	return len(p.GivenNames) == 0 &&
		p.FamilyName == "" &&
		len(p.Emails) == 0 &&
		p.TelegramHandle.IsEmpty() &&
		!p.TelegramID.IsValid() &&
		len(p.Aliases) == 0 &&
		p.AdmissionYear == 0 &&
		p.Scholarship == nil &&
		p.Country == "" &&
		p.PublicComment == "" &&
		p.SecretComment == "" &&
		len(p.Courses) == 0 &&
		len(p.Extra) == 0
}

// NameTokens возвращает токены всех имён и фамилии из строки.
func (p Patch) NameTokens() []string {
	parts := make([]string, 0, len(p.GivenNames)+1)
	parts = append(parts, p.GivenNames...)
	parts = append(parts, p.FamilyName)
	return NameTokens(parts...)
}

// FullName возвращает имя из строки для отчёта.
func (p Patch) FullName() string {
	s := &Student{GivenNames: p.GivenNames, FamilyName: p.FamilyName}
	return s.FullName()
}

// AsPatch возвращает текущие значения студента в виде Patch.
// Применение результата к той же записи не меняет ни одного поля.
func (s *Student) AsPatch() Patch {
	scholarship := s.Scholarship
	p := Patch{
		GivenNames:     append([]string(nil), s.GivenNames...),
		FamilyName:     s.FamilyName,
		Emails:         append([]string(nil), s.Emails...),
		TelegramHandle: s.TelegramHandle,
		TelegramID:     s.TelegramID,
		Aliases:        append([]string(nil), s.Aliases...),
		AdmissionYear:  s.AdmissionYear,
		Scholarship:    &scholarship,
		Country:        s.Country,
		PublicComment:  s.PublicComment,
		SecretComment:  s.SecretComment,
		Courses:        append([]Course(nil), s.Courses...),
	}
	if len(s.Extra) > 0 {
		p.Extra = make(map[string]string, len(s.Extra))
		for k, v := range s.Extra {
			p.Extra[k] = v
		}
	}
	return p
}
