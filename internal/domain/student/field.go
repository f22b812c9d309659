package student

import (
	"github.com/jbcub/studentdir/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// FIELD CATALOGUE
// ══════════════════════════════════════════════════════════════════════════════

// Classification определяет, в какой раздел карточки попадает поле.
type Classification string

const (
	// ClassPrimary - основные атрибуты студента (имя, контакты, год).
	ClassPrimary Classification = "primary"
	// ClassCourses - столбец с оценкой по курсу; каноничное имя = название курса.
	ClassCourses Classification = "courses"
	// ClassOthers - прочие поля, хранятся в Extra.
	ClassOthers Classification = "others"
)

// IsValid проверяет, что классификация известна.
func (c Classification) IsValid() bool {
	switch c {
	case ClassPrimary, ClassCourses, ClassOthers:
		return true
	default:
		return false
	}
}

// Каноничные имена основных полей.
const (
	FieldGivenNames     = "given_names"
	FieldFamilyName     = "family_name"
	FieldEmails         = "emails"
	FieldTelegramHandle = "telegram_handle"
	FieldTelegramID     = "telegram_id"
	FieldAliases        = "aliases"
	FieldAdmissionYear  = "admission_year"
	FieldScholarship    = "scholarship"
	FieldCountry        = "country"
	FieldPublicComment  = "public_comment"
	FieldSecretComment  = "secret_comment"
)

// PrimaryFields перечисляет основные поля, которые отображаются на атрибуты Student.
var PrimaryFields = []string{
	FieldGivenNames,
	FieldFamilyName,
	FieldEmails,
	FieldTelegramHandle,
	FieldTelegramID,
	FieldAliases,
	FieldAdmissionYear,
	FieldScholarship,
	FieldCountry,
	FieldPublicComment,
	FieldSecretComment,
}

// IsPrimaryField проверяет, есть ли у поля собственный атрибут в Student.
func IsPrimaryField(name string) bool {
	for _, f := range PrimaryFields {
		if f == name {
			return true
		}
	}
	return false
}

// FieldDefinition - описание каноничного поля и его синонимов.
// Синонимы сравниваются без учёта регистра.
type FieldDefinition struct {
	Name           string
	Classification Classification
	Description    string
	Synonyms       []string
}

// Validate проверяет описание поля.
func (d FieldDefinition) Validate() error {
	if NormalizeText(d.Name) == "" {
		return shared.NewDomainError("catalog", "Validate", shared.ErrEmptyValue, "field name is required")
	}
	if !d.Classification.IsValid() {
		return shared.WrapError("catalog", "Validate", shared.ErrInvalidInput,
			"field "+d.Name+": unknown classification "+string(d.Classification), shared.ErrInvalidFieldClass)
	}
	return nil
}
