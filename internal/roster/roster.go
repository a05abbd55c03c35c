package roster

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"connected/pkg/interfaces"
	"connected/pkg/types"
)

// StudentKey identifies a student_course row for deletion
// FUNCTIONAL DISCOVERY: ID wins when present, RollNo is the natural-key fallback for
// rows the editor never saw persisted
type StudentKey struct {
	ID     string `json:"id"`
	RollNo string `json:"roll_no"`
}

// TeacherKey identifies a course_teacher row for deletion.
type TeacherKey struct {
	ID           string `json:"id"`
	CourseCode   string `json:"course_code"`
	TeacherEmail string `json:"teacher_email"`
}

// Service is the coordinator roster editor and the roster lookups built on it
type Service struct {
	store  interfaces.RosterStore
	logger *slog.Logger
}

func NewService(store interfaces.RosterStore, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With("component", "roster"),
	}
}

func (s *Service) ListStudents(ctx context.Context) ([]types.StudentRow, error) {
	return s.store.ListStudents(ctx)
}

func (s *Service) ListTeachers(ctx context.Context) ([]types.TeacherRow, error) {
	return s.store.ListTeachers(ctx)
}

// SaveStudents upserts the non-blank rows and returns them as stored
// FUNCTIONAL DISCOVERY: a row only needs one non-empty field, the editor accepts
// whatever the coordinator typed beyond trimming and email case
func (s *Service) SaveStudents(ctx context.Context, rows []types.StudentRow) ([]types.StudentRow, error) {
	var batch []types.StudentRow
	for _, row := range rows {
		if row.IsBlank() {
			continue
		}
		row.ID = strings.TrimSpace(row.ID)
		if row.ID == "" {
			row.ID = uuid.New().String()
		}
		row.RollNo = strings.TrimSpace(row.RollNo)
		row.Name = strings.TrimSpace(row.Name)
		row.Email = types.NormalizeEmail(row.Email)
		row.CourseCode = strings.TrimSpace(row.CourseCode)
		batch = append(batch, row)
	}

	if err := s.store.UpsertStudents(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to save students: %w", err)
	}
	s.logger.InfoContext(ctx, "students saved", "rows", len(batch), "skipped", len(rows)-len(batch))
	return batch, nil
}

// SaveTeachers upserts the non-blank rows and returns them as stored.
func (s *Service) SaveTeachers(ctx context.Context, rows []types.TeacherRow) ([]types.TeacherRow, error) {
	var batch []types.TeacherRow
	for _, row := range rows {
		if row.IsBlank() {
			continue
		}
		row.ID = strings.TrimSpace(row.ID)
		if row.ID == "" {
			row.ID = uuid.New().String()
		}
		row.CourseCode = strings.TrimSpace(row.CourseCode)
		row.TeacherName = strings.TrimSpace(row.TeacherName)
		row.TeacherEmail = types.NormalizeEmail(row.TeacherEmail)
		batch = append(batch, row)
	}

	if err := s.store.UpsertTeachers(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to save teachers: %w", err)
	}
	s.logger.InfoContext(ctx, "teachers saved", "rows", len(batch), "skipped", len(rows)-len(batch))
	return batch, nil
}

// DeleteStudent removes by id, else by roll number, and returns the removed row count
func (s *Service) DeleteStudent(ctx context.Context, key StudentKey) (int64, error) {
	switch {
	case strings.TrimSpace(key.ID) != "":
		return s.store.DeleteStudent(ctx, strings.TrimSpace(key.ID))
	case strings.TrimSpace(key.RollNo) != "":
		return s.store.DeleteStudentByRollNo(ctx, strings.TrimSpace(key.RollNo))
	default:
		return 0, ErrMissingKey
	}
}

// DeleteTeacher removes by id, else by the course code and teacher email pair
func (s *Service) DeleteTeacher(ctx context.Context, key TeacherKey) (int64, error) {
	if id := strings.TrimSpace(key.ID); id != "" {
		return s.store.DeleteTeacher(ctx, id)
	}
	code := strings.TrimSpace(key.CourseCode)
	email := types.NormalizeEmail(key.TeacherEmail)
	if code == "" || email == "" {
		return 0, ErrMissingKey
	}
	return s.store.DeleteTeacherByCourse(ctx, code, email)
}

// IsTeacher reports whether email appears in course_teacher
func (s *Service) IsTeacher(ctx context.Context, email string) (bool, error) {
	return s.store.TeacherExists(ctx, types.NormalizeEmail(email))
}

// IsStudent reports whether email appears in student_course
func (s *Service) IsStudent(ctx context.Context, email string) (bool, error) {
	return s.store.StudentExists(ctx, types.NormalizeEmail(email))
}
