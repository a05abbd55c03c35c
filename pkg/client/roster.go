package client

import (
	"context"
	"net/http"
	"net/url"

	"connected/pkg/types"
)

// CoordinatorHeader carries the roster editor token
const CoordinatorHeader = "X-Coordinator-Token"

type deleteResponse struct {
	Deleted int64 `json:"deleted"`
}

func (c *Client) ListStudents(ctx context.Context) ([]types.StudentRow, error) {
	var rows []types.StudentRow
	if err := c.do(ctx, http.MethodGet, "/api/roster/students", nil, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) ListTeachers(ctx context.Context) ([]types.TeacherRow, error) {
	var rows []types.TeacherRow
	if err := c.do(ctx, http.MethodGet, "/api/roster/teachers", nil, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// SaveStudents upserts a batch and returns the rows as stored, ids included
func (c *Client) SaveStudents(ctx context.Context, rows []types.StudentRow) ([]types.StudentRow, error) {
	var saved []types.StudentRow
	if err := c.do(ctx, http.MethodPut, "/api/roster/students", nil, rows, &saved); err != nil {
		return nil, err
	}
	return saved, nil
}

func (c *Client) SaveTeachers(ctx context.Context, rows []types.TeacherRow) ([]types.TeacherRow, error) {
	var saved []types.TeacherRow
	if err := c.do(ctx, http.MethodPut, "/api/roster/teachers", nil, rows, &saved); err != nil {
		return nil, err
	}
	return saved, nil
}

// DeleteStudent removes by id, or by roll number when id is empty
func (c *Client) DeleteStudent(ctx context.Context, id, rollNo string) (int64, error) {
	query := url.Values{}
	setIf(query, "id", id)
	setIf(query, "roll_no", rollNo)
	var response deleteResponse
	err := c.do(ctx, http.MethodDelete, "/api/roster/students", query, nil, &response)
	return response.Deleted, err
}

// DeleteTeacher removes by id, or by course code and teacher email when id is empty
func (c *Client) DeleteTeacher(ctx context.Context, id, courseCode, teacherEmail string) (int64, error) {
	query := url.Values{}
	setIf(query, "id", id)
	setIf(query, "course_code", courseCode)
	setIf(query, "teacher_email", teacherEmail)
	var response deleteResponse
	err := c.do(ctx, http.MethodDelete, "/api/roster/teachers", query, nil, &response)
	return response.Deleted, err
}

func setIf(values url.Values, key, value string) {
	if value != "" {
		values.Set(key, value)
	}
}
