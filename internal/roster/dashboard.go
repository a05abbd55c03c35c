package roster

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"connected/pkg/interfaces"
	"connected/pkg/types"
)

// StudentDashboard returns the student's row, courses and the teachers of those courses
func (s *Service) StudentDashboard(ctx context.Context, email string) (*types.StudentDashboard, error) {
	row, err := s.store.FindStudentByEmail(ctx, types.NormalizeEmail(email))
	if errors.Is(err, interfaces.ErrRowNotFound) {
		return nil, ErrNotOnRoster
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load student: %w", err)
	}

	courses := row.CourseCodes()
	teachers, err := s.store.TeachersForCourses(ctx, courses)
	if err != nil {
		return nil, fmt.Errorf("failed to load course teachers: %w", err)
	}

	dashboard := &types.StudentDashboard{
		Student:  *row,
		Courses:  courses,
		Teachers: teachers,
	}
	if dashboard.Courses == nil {
		dashboard.Courses = []string{}
	}
	if dashboard.Teachers == nil {
		dashboard.Teachers = []types.TeacherRow{}
	}
	return dashboard, nil
}

// TeacherDashboard returns the courses taught by email with the students enrolled in each
// FUNCTIONAL DISCOVERY: a teacher may hold several rows for one course code, the
// dashboard lists each code once in assignment order
func (s *Service) TeacherDashboard(ctx context.Context, email string) (*types.TeacherDashboard, error) {
	email = types.NormalizeEmail(email)
	assignments, err := s.store.TeacherAssignments(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignments: %w", err)
	}
	if len(assignments) == 0 {
		return nil, ErrNotOnRoster
	}

	dashboard := &types.TeacherDashboard{Email: email, Courses: []types.CourseRoster{}}
	seen := make(map[string]bool)
	for _, assignment := range assignments {
		if dashboard.Name == "" {
			dashboard.Name = assignment.TeacherName
		}
		code := strings.TrimSpace(assignment.CourseCode)
		if code == "" || seen[strings.ToLower(code)] {
			continue
		}
		seen[strings.ToLower(code)] = true

		students, err := s.store.StudentsInCourse(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("failed to load students of %s: %w", code, err)
		}
		if students == nil {
			students = []types.StudentRow{}
		}
		dashboard.Courses = append(dashboard.Courses, types.CourseRoster{CourseCode: code, Students: students})
	}
	return dashboard, nil
}
