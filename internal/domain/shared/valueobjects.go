// Package shared contains common domain errors and value objects
// that are used across all domain packages.
package shared

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// TelegramID represents a unique Telegram user identifier.
type TelegramID int64

// IsValid checks if the Telegram ID is valid (positive number).
func (t TelegramID) IsValid() bool {
	return t > 0
}

// Int64 returns the underlying int64 value.
func (t TelegramID) Int64() int64 {
	return int64(t)
}

// String returns the string representation.
func (t TelegramID) String() string {
	return strconv.FormatInt(int64(t), 10)
}

// NewTelegramID creates a new TelegramID with validation.
func NewTelegramID(id int64) (TelegramID, error) {
	if id <= 0 {
		return 0, ErrInvalidTelegramID
	}
	return TelegramID(id), nil
}

// ParseTelegramID parses a decimal Telegram ID from raw text.
func ParseTelegramID(raw string) (TelegramID, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, WrapError("shared", "ParseTelegramID", ErrInvalidID, "telegram id is not a number", err)
	}
	return NewTelegramID(id)
}

// StudentID represents a unique student identifier (UUID format).
type StudentID string

// UUID validation regex (simple version).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsValid checks if the student ID is a valid UUID.
func (s StudentID) IsValid() bool {
	return uuidRegex.MatchString(string(s))
}

// String returns the string representation.
func (s StudentID) String() string {
	return string(s)
}

// IsEmpty checks if the ID is empty.
func (s StudentID) IsEmpty() bool {
	return s == ""
}

// NewStudentID creates a new StudentID with validation.
func NewStudentID(id string) (StudentID, error) {
	sid := StudentID(strings.ToLower(strings.TrimSpace(id)))
	if !sid.IsValid() {
		return "", NewDomainError("shared", "NewStudentID", ErrInvalidID, "invalid student ID format")
	}
	return sid, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Contact Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// handlePlaceholders are spreadsheet fillers that mean "no handle".
var handlePlaceholders = map[string]bool{
	"-":    true,
	"—":    true,
	"none": true,
	"n/a":  true,
	"na":   true,
	"нет":  true,
}

var handleRegex = regexp.MustCompile(`^@[A-Za-z0-9_]{3,32}$`)

// TelegramHandle is a public Telegram username in "@name" form.
type TelegramHandle string

// NormalizeTelegramHandle converts raw spreadsheet input into "@name" form.
// Returns an empty handle for blanks and placeholders; t.me links are unwrapped.
func NormalizeTelegramHandle(raw string) TelegramHandle {
	s := strings.TrimSpace(raw)
	if s == "" || handlePlaceholders[strings.ToLower(s)] {
		return ""
	}
	for _, prefix := range []string{"https://t.me/", "http://t.me/", "t.me/"} {
		if len(s) > len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
			s = s[len(prefix):]
			break
		}
	}
	s = strings.TrimSuffix(s, "/")
	if !strings.HasPrefix(s, "@") {
		s = "@" + s
	}
	return TelegramHandle(s)
}

// IsValid checks the handle against Telegram username rules.
func (h TelegramHandle) IsValid() bool {
	return handleRegex.MatchString(string(h))
}

// IsEmpty checks if the handle is absent.
func (h TelegramHandle) IsEmpty() bool {
	return h == ""
}

// Key returns the case-insensitive comparison key.
func (h TelegramHandle) Key() string {
	return strings.ToLower(string(h))
}

// Username returns the handle without the leading "@".
func (h TelegramHandle) Username() string {
	return strings.TrimPrefix(string(h), "@")
}

// String returns the string representation.
func (h TelegramHandle) String() string {
	return string(h)
}

// NormalizeEmail lower-cases and trims an address. Returns "" for values
// without a local part and a domain.
func NormalizeEmail(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "mailto:")
	at := strings.LastIndex(s, "@")
	if at <= 0 || at == len(s)-1 || strings.ContainsAny(s, " \t") {
		return ""
	}
	return s
}

// ═══════════════════════════════════════════════════════════════════════════
// Academic Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// Grade boundaries.
const (
	MinGrade = 0
	MaxGrade = 100
)

// Admission year boundaries.
const (
	MinAdmissionYear = 1900
	MaxAdmissionYear = 2100
)

// ParseGrade parses a course grade in the 0..100 range.
func ParseGrade(raw string) (int, error) {
	s := strings.TrimSuffix(strings.TrimSpace(raw), "%")
	g, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, WrapError("shared", "ParseGrade", ErrInvalidFormat, fmt.Sprintf("grade %q is not a number", raw), err)
	}
	if g < MinGrade || g > MaxGrade {
		return 0, ErrInvalidGrade
	}
	return g, nil
}

// ParseAdmissionYear parses a four-digit admission year.
func ParseAdmissionYear(raw string) (int, error) {
	y, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, WrapError("shared", "ParseAdmissionYear", ErrInvalidFormat, fmt.Sprintf("year %q is not a number", raw), err)
	}
	if y < MinAdmissionYear || y > MaxAdmissionYear {
		return 0, ErrInvalidYear
	}
	return y, nil
}

// ParseYesNo recognizes the yes/no spellings found in admissions spreadsheets.
// Grant types ("full", "partial") count as yes.
func ParseYesNo(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "y", "true", "1", "+", "да", "full", "partial", "merit", "scholarship":
		return true, nil
	case "no", "n", "false", "0", "none", "нет", "-":
		return false, nil
	default:
		return false, ErrInvalidBool
	}
}
