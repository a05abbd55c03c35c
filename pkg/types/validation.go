package types

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

// MaxContentLength is the longest message body accepted, in characters.
const MaxContentLength = 4000

// NormalizeEmail trims and lower-cases an address
// FUNCTIONAL DISCOVERY: roster and identity lookups compare emails case-insensitively
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail checks that email parses as a bare address.
func IsValidEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// ValidateContent enforces message body limits.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return ErrContentTooLarge
	}
	return nil
}

// OrderedPair returns the participants in lexical order.
func OrderedPair(a, b string) (low, high string) {
	if a <= b {
		return a, b
	}
	return b, a
}

// HasParticipant reports whether email is one side of the conversation.
func (c *Conversation) HasParticipant(email string) bool {
	email = NormalizeEmail(email)
	return NormalizeEmail(c.Participant1) == email || NormalizeEmail(c.Participant2) == email
}

// Other returns the participant that is not email.
func (c *Conversation) Other(email string) string {
	if NormalizeEmail(c.Participant1) == NormalizeEmail(email) {
		return c.Participant2
	}
	return c.Participant1
}

// CourseCodes splits the comma-joined course list, dropping blanks.
func (s *StudentRow) CourseCodes() []string {
	return SplitCourseCodes(s.CourseCode)
}

// EnrolledIn reports whether the student's course list contains code.
func (s *StudentRow) EnrolledIn(code string) bool {
	code = strings.TrimSpace(code)
	for _, c := range s.CourseCodes() {
		if strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}

// IsBlank reports whether every editable field is empty.
func (s *StudentRow) IsBlank() bool {
	return strings.TrimSpace(s.RollNo) == "" &&
		strings.TrimSpace(s.Name) == "" &&
		strings.TrimSpace(s.Email) == "" &&
		strings.TrimSpace(s.CourseCode) == ""
}

// IsBlank reports whether every editable field is empty.
func (t *TeacherRow) IsBlank() bool {
	return strings.TrimSpace(t.CourseCode) == "" &&
		strings.TrimSpace(t.TeacherName) == "" &&
		strings.TrimSpace(t.TeacherEmail) == ""
}

// SplitCourseCodes splits a comma-joined course list.
func SplitCourseCodes(list string) []string {
	var codes []string
	for _, part := range strings.Split(list, ",") {
		if code := strings.TrimSpace(part); code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}
