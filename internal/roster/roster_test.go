package roster

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"connected/internal/database"
	"connected/internal/logging"
	dbconfig "connected/pkg/database"
	"connected/pkg/types"
)

func setupService(t *testing.T) *Service {
	t.Helper()

	config := dbconfig.DefaultConfig()
	config.DSN = filepath.Join(t.TempDir(), "roster.db")
	config.MaxConnections = 4

	manager, err := database.NewManager(config, logging.Discard())
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })
	if err := manager.Migrate(); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	return NewService(manager, logging.Discard())
}

func seed(t *testing.T, s *Service) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.SaveStudents(ctx, []types.StudentRow{
		{RollNo: "R1", Name: "Ada", Email: "Ada@Uni.edu", CourseCode: "CS101, MA201"},
		{RollNo: "R2", Name: "Ben", Email: "ben@uni.edu", CourseCode: "CS1010"},
		{RollNo: "R3", Name: "Cy", Email: "cy@uni.edu", CourseCode: "MA201"},
	}); err != nil {
		t.Fatalf("Failed to seed students: %v", err)
	}
	if _, err := s.SaveTeachers(ctx, []types.TeacherRow{
		{CourseCode: "CS101", TeacherName: "Prof X", TeacherEmail: "prof.x@uni.edu"},
		{CourseCode: "MA201", TeacherName: "Prof X", TeacherEmail: "prof.x@uni.edu"},
		{CourseCode: "MA201", TeacherName: "Dr Y", TeacherEmail: "dr.y@uni.edu"},
	}); err != nil {
		t.Fatalf("Failed to seed teachers: %v", err)
	}
}

// FUNCTIONAL VALIDATION TEST: Batch save skips blank rows and assigns ids
func TestService_SaveStudents(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()

	saved, err := s.SaveStudents(ctx, []types.StudentRow{
		{RollNo: "R1", Name: " Ada ", Email: " ADA@uni.edu", CourseCode: "CS101 , ,MA201"},
		{ID: "blank-with-id", RollNo: "  "},
		{},
	})
	if err != nil {
		t.Fatalf("SaveStudents failed: %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("Expected one saved row, got %d", len(saved))
	}
	row := saved[0]
	if row.ID == "" || row.Name != "Ada" || row.Email != "ada@uni.edu" || row.CourseCode != "CS101 , ,MA201" {
		t.Errorf("Row not trimmed as entered: %+v", row)
	}

	// Editing a persisted row updates it in place
	row.Name = "Ada L."
	if _, err := s.SaveStudents(ctx, []types.StudentRow{row}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	rows, err := s.ListStudents(ctx)
	if err != nil {
		t.Fatalf("ListStudents failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Name != "Ada L." || rows[0].ID != row.ID {
		t.Errorf("Expected one updated row, got %+v", rows)
	}
}

// FUNCTIONAL VALIDATION TEST: Non-blank rows are saved as typed, only blank rows are skipped
func TestService_SaveKeepsMalformedRows(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()

	saved, err := s.SaveStudents(ctx, []types.StudentRow{
		{RollNo: "R1", Name: "Ada", Email: "ada@uni.edu", CourseCode: "CS101"},
		{RollNo: "R2", Name: "Ben", Email: "ben-at-uni"},
		{RollNo: strings.Repeat("9", 65)},
	})
	if err != nil || len(saved) != 3 {
		t.Fatalf("Expected three saved rows, got %d err=%v", len(saved), err)
	}
	students, err := s.ListStudents(ctx)
	if err != nil || len(students) != 3 {
		t.Fatalf("Expected three stored students, got %+v err=%v", students, err)
	}

	teachers, err := s.SaveTeachers(ctx, []types.TeacherRow{
		{CourseCode: "CS101", TeacherName: "Prof X", TeacherEmail: "prof.x@uni.edu"},
		{},
		{CourseCode: "MA201", TeacherEmail: "not-an-email"},
	})
	if err != nil || len(teachers) != 2 {
		t.Fatalf("Expected two saved teachers, got %d err=%v", len(teachers), err)
	}
	stored, _ := s.ListTeachers(ctx)
	found := false
	for _, row := range stored {
		if row.TeacherEmail == "not-an-email" && row.CourseCode == "MA201" {
			found = true
		}
	}
	if len(stored) != 2 || !found {
		t.Errorf("Malformed teacher row should be stored as entered, got %+v", stored)
	}
}

// FUNCTIONAL VALIDATION TEST: Delete by id or natural key
func TestService_Delete(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()
	seed(t, s)

	students, _ := s.ListStudents(ctx)
	var ada types.StudentRow
	for _, row := range students {
		if row.RollNo == "R1" {
			ada = row
		}
	}

	tests := []struct {
		name string
		run  func() (int64, error)
		want int64
		err  error
	}{
		{"student by id", func() (int64, error) { return s.DeleteStudent(ctx, StudentKey{ID: ada.ID}) }, 1, nil},
		{"student by roll number", func() (int64, error) { return s.DeleteStudent(ctx, StudentKey{RollNo: "R2"}) }, 1, nil},
		{"student missing", func() (int64, error) { return s.DeleteStudent(ctx, StudentKey{RollNo: "R9"}) }, 0, nil},
		{"student without key", func() (int64, error) { return s.DeleteStudent(ctx, StudentKey{}) }, 0, ErrMissingKey},
		{"teacher by natural key", func() (int64, error) {
			return s.DeleteTeacher(ctx, TeacherKey{CourseCode: "MA201", TeacherEmail: "DR.Y@uni.edu"})
		}, 1, nil},
		{"teacher with half a key", func() (int64, error) { return s.DeleteTeacher(ctx, TeacherKey{CourseCode: "MA201"}) }, 0, ErrMissingKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.run()
			if !errors.Is(err, tt.err) {
				t.Fatalf("error = %v, want %v", err, tt.err)
			}
			if got != tt.want {
				t.Errorf("removed %d rows, want %d", got, tt.want)
			}
		})
	}

	remaining, _ := s.ListStudents(ctx)
	if len(remaining) != 1 || remaining[0].RollNo != "R3" {
		t.Errorf("Expected only R3 left, got %+v", remaining)
	}
}

// FUNCTIONAL VALIDATION TEST: Roster lookups are case-insensitive
func TestService_Lookups(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()
	seed(t, s)

	tests := []struct {
		email            string
		teacher, student bool
	}{
		{"PROF.X@uni.edu", true, false},
		{"ada@uni.edu", false, true},
		{" Ada@UNI.edu ", false, true},
		{"nobody@uni.edu", false, false},
	}

	for _, tt := range tests {
		isTeacher, err := s.IsTeacher(ctx, tt.email)
		if err != nil || isTeacher != tt.teacher {
			t.Errorf("IsTeacher(%q) = %v, %v", tt.email, isTeacher, err)
		}
		isStudent, err := s.IsStudent(ctx, tt.email)
		if err != nil || isStudent != tt.student {
			t.Errorf("IsStudent(%q) = %v, %v", tt.email, isStudent, err)
		}
	}
}

// FUNCTIONAL VALIDATION TEST: Student dashboard lists the teachers of every enrolled course
func TestService_StudentDashboard(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()
	seed(t, s)

	dashboard, err := s.StudentDashboard(ctx, "ada@uni.edu")
	if err != nil {
		t.Fatalf("StudentDashboard failed: %v", err)
	}
	if dashboard.Student.Name != "Ada" || len(dashboard.Courses) != 2 {
		t.Errorf("Unexpected student section: %+v", dashboard)
	}
	if len(dashboard.Teachers) != 3 {
		t.Errorf("Expected 3 teacher rows for CS101 and MA201, got %+v", dashboard.Teachers)
	}

	// Ben's CS1010 has no teacher, and must not match CS101
	dashboard, err = s.StudentDashboard(ctx, "ben@uni.edu")
	if err != nil {
		t.Fatalf("StudentDashboard failed: %v", err)
	}
	if len(dashboard.Teachers) != 0 {
		t.Errorf("Expected no teachers, got %+v", dashboard.Teachers)
	}

	if _, err := s.StudentDashboard(ctx, "prof.x@uni.edu"); !errors.Is(err, ErrNotOnRoster) {
		t.Errorf("Expected ErrNotOnRoster, got %v", err)
	}
}

// FUNCTIONAL VALIDATION TEST: Teacher dashboard groups enrolled students per course
func TestService_TeacherDashboard(t *testing.T) {
	s := setupService(t)
	ctx := context.Background()
	seed(t, s)

	dashboard, err := s.TeacherDashboard(ctx, "Prof.X@uni.edu")
	if err != nil {
		t.Fatalf("TeacherDashboard failed: %v", err)
	}
	if dashboard.Name != "Prof X" || len(dashboard.Courses) != 2 {
		t.Fatalf("Unexpected dashboard: %+v", dashboard)
	}

	enrolled := map[string][]string{}
	for _, course := range dashboard.Courses {
		for _, student := range course.Students {
			enrolled[course.CourseCode] = append(enrolled[course.CourseCode], student.RollNo)
		}
	}
	if got := strings.Join(enrolled["CS101"], ","); got != "R1" {
		t.Errorf("CS101 students = %s, want R1 (CS1010 is a different course)", got)
	}
	if got := strings.Join(enrolled["MA201"], ","); got != "R1,R3" {
		t.Errorf("MA201 students = %s, want R1,R3", got)
	}

	if _, err := s.TeacherDashboard(ctx, "ada@uni.edu"); !errors.Is(err, ErrNotOnRoster) {
		t.Errorf("Expected ErrNotOnRoster, got %v", err)
	}
}
