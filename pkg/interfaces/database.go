package interfaces

import (
	"context"

	"connected/pkg/types"
)

// IdentityStore persists the auth provider's identities
// FUNCTIONAL DISCOVERY: lookups by email expect a normalized address
type IdentityStore interface {
	GetIdentityByEmail(ctx context.Context, email string) (*types.Identity, error)
	GetIdentityByID(ctx context.Context, id string) (*types.Identity, error)
	CreateIdentity(ctx context.Context, identity *types.Identity) error
	UpdateIdentity(ctx context.Context, identity *types.Identity) error
}

// RosterStore covers the student_course and course_teacher tables.
type RosterStore interface {
	ListStudents(ctx context.Context) ([]types.StudentRow, error)
	ListTeachers(ctx context.Context) ([]types.TeacherRow, error)

	// UpsertStudents inserts or updates rows by id in one transaction
	UpsertStudents(ctx context.Context, rows []types.StudentRow) error
	UpsertTeachers(ctx context.Context, rows []types.TeacherRow) error

	// Delete operations return the number of removed rows
	DeleteStudent(ctx context.Context, id string) (int64, error)
	DeleteStudentByRollNo(ctx context.Context, rollNo string) (int64, error)
	DeleteTeacher(ctx context.Context, id string) (int64, error)
	DeleteTeacherByCourse(ctx context.Context, courseCode, teacherEmail string) (int64, error)

	TeacherExists(ctx context.Context, email string) (bool, error)
	StudentExists(ctx context.Context, email string) (bool, error)
	FindStudentByEmail(ctx context.Context, email string) (*types.StudentRow, error)
	TeacherAssignments(ctx context.Context, email string) ([]types.TeacherRow, error)
	TeachersForCourses(ctx context.Context, codes []string) ([]types.TeacherRow, error)
	StudentsInCourse(ctx context.Context, code string) ([]types.StudentRow, error)
}

// ConversationStore persists conversations
// ARCHITECTURAL DISCOVERY: CreateConversation is a no-op when the ordered pair already
// exists, callers re-read with FindConversation to learn the winning id
type ConversationStore interface {
	FindConversation(ctx context.Context, low, high string) (*types.Conversation, error)
	CreateConversation(ctx context.Context, conversation *types.Conversation) error
	GetConversation(ctx context.Context, id string) (*types.Conversation, error)
}

// MessageStore persists messages.
type MessageStore interface {
	InsertMessage(ctx context.Context, message *types.Message) error

	// ListMessages returns the conversation's messages by created_at ascending
	ListMessages(ctx context.Context, conversationID string) ([]types.Message, error)
}

// DatabaseManager handles all database operations
type DatabaseManager interface {
	IdentityStore
	RosterStore
	ConversationStore
	MessageStore

	HealthCheck(ctx context.Context) error
	Close() error
}
