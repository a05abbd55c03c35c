package types

import (
	"time"
)

// Role is the membership a user holds on the roster.
type Role string

const (
	RoleNone    Role = ""
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Valid reports whether r is one of the assignable roles.
func (r Role) Valid() bool {
	return r == RoleTeacher || r == RoleStudent
}

// Metadata is the per-identity data the auth provider keeps next to the credentials.
type Metadata struct {
	Role        Role `json:"role,omitempty"`
	PasswordSet bool `json:"password_set"`
}

// Identity is a user known to the auth provider
// FUNCTIONAL DISCOVERY: PasswordHash is never serialized, an identity created by a
// one-time link has no hash until the password-creation screen runs
type Identity struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash *string   `json:"-" db:"password_hash"`
	Role         Role      `json:"role" db:"role"`
	PasswordSet  bool      `json:"password_set" db:"password_set"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Metadata returns the identity's metadata view.
func (i *Identity) Metadata() Metadata {
	return Metadata{Role: i.Role, PasswordSet: i.PasswordSet}
}

// IdentityStatus answers the login screen's existence question.
type IdentityStatus struct {
	Exists      bool `json:"exists"`
	PasswordSet bool `json:"password_set"`
}

// UserUpdate carries the optional fields of an update-user call.
type UserUpdate struct {
	Password *string
	Metadata *Metadata
}

// Session is either Unauthenticated or Authenticated
// ARCHITECTURAL DISCOVERY: closed set of variants, callers switch on the concrete type
// instead of reading a global auth context
type Session interface {
	isSession()
}

// Unauthenticated is the session of a caller without a valid token.
type Unauthenticated struct{}

// Authenticated is the session of a signed-in identity.
type Authenticated struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	Role        Role      `json:"role,omitempty"`
	PasswordSet bool      `json:"password_set"`
	TokenID     string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (Unauthenticated) isSession() {}
func (Authenticated) isSession()   {}

// SignIn is the result of any operation that issues a session token.
type SignIn struct {
	Token   string        `json:"token"`
	Session Authenticated `json:"session"`
}

// StudentRow is one row of the student_course table
// FUNCTIONAL DISCOVERY: CourseCode is a comma-joined list, see CourseCodes
type StudentRow struct {
	ID         string `json:"id" db:"id"`
	RollNo     string `json:"roll_no" db:"roll_no"`
	Name       string `json:"name" db:"name"`
	Email      string `json:"email" db:"email"`
	CourseCode string `json:"course_code" db:"course_code"`
}

// TeacherRow is one row of the course_teacher table.
type TeacherRow struct {
	ID           string `json:"id" db:"id"`
	CourseCode   string `json:"course_code" db:"course_code"`
	TeacherName  string `json:"teacher_name" db:"teacher_name"`
	TeacherEmail string `json:"teacher_email" db:"teacher_email"`
}

// Conversation is a 1:1 channel between two participants
// ARCHITECTURAL DISCOVERY: ParticipantLow/High hold the ordered pair so the store can
// enforce one conversation per unordered pair with a plain unique index
type Conversation struct {
	ID              string    `json:"id" db:"id"`
	Participant1    string    `json:"participant1" db:"participant1"`
	Participant2    string    `json:"participant2" db:"participant2"`
	ParticipantLow  string    `json:"-" db:"participant_low"`
	ParticipantHigh string    `json:"-" db:"participant_high"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Message is one chat line
// FUNCTIONAL DISCOVERY: immutable after insert, ordered by CreatedAt
type Message struct {
	ID             string    `json:"id" db:"id"`
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	Sender         string    `json:"sender" db:"sender"`
	Content        string    `json:"content" db:"content"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// RealtimeEvent is the payload pushed to realtime subscribers.
type RealtimeEvent struct {
	Type   string   `json:"type"`
	Table  string   `json:"table"`
	Record *Message `json:"record"`
}

const (
	EventInsert   = "INSERT"
	TableMessages = "messages"
)

// CourseRoster is one course of a teacher dashboard.
type CourseRoster struct {
	CourseCode string       `json:"course_code"`
	Students   []StudentRow `json:"students"`
}

// TeacherDashboard is what the teacher screen renders.
type TeacherDashboard struct {
	Email   string         `json:"email"`
	Name    string         `json:"name"`
	Courses []CourseRoster `json:"courses"`
}

// StudentDashboard is what the student screen renders.
type StudentDashboard struct {
	Student  StudentRow   `json:"student"`
	Courses  []string     `json:"courses"`
	Teachers []TeacherRow `json:"teachers"`
}
