package api

import (
	"errors"
	"net/http"

	"connected/internal/logging"
	"connected/internal/roster"
	"connected/pkg/types"
)

type DeleteResponse struct {
	Deleted int64 `json:"deleted"`
}

// sendRosterError maps roster failures, store errors stay out of the response
func (s *Server) sendRosterError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, roster.ErrMissingKey):
		sendError(w, err.Error(), http.StatusBadRequest)
	default:
		logging.FromContext(r.Context()).ErrorContext(r.Context(), "roster operation failed", "error", err)
		sendError(w, "Roster operation failed", http.StatusInternalServerError)
	}
}

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	rows, err := s.roster.ListStudents(r.Context())
	if err != nil {
		s.sendRosterError(w, r, err)
		return
	}
	if rows == nil {
		rows = []types.StudentRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleListTeachers(w http.ResponseWriter, r *http.Request) {
	rows, err := s.roster.ListTeachers(r.Context())
	if err != nil {
		s.sendRosterError(w, r, err)
		return
	}
	if rows == nil {
		rows = []types.TeacherRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// FUNCTIONAL DISCOVERY: PUT /api/roster/students - upserts the batch and returns the saved rows
// with their assigned ids; fully blank rows are dropped, the rest are stored as entered
func (s *Server) handleSaveStudents(w http.ResponseWriter, r *http.Request) {
	var rows []types.StudentRow
	if err := readJSON(w, r, &rows); err != nil {
		sendBadRequest(w, err)
		return
	}
	saved, err := s.roster.SaveStudents(r.Context(), rows)
	if err != nil {
		s.sendRosterError(w, r, err)
		return
	}
	if saved == nil {
		saved = []types.StudentRow{}
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleSaveTeachers(w http.ResponseWriter, r *http.Request) {
	var rows []types.TeacherRow
	if err := readJSON(w, r, &rows); err != nil {
		sendBadRequest(w, err)
		return
	}
	saved, err := s.roster.SaveTeachers(r.Context(), rows)
	if err != nil {
		s.sendRosterError(w, r, err)
		return
	}
	if saved == nil {
		saved = []types.TeacherRow{}
	}
	writeJSON(w, http.StatusOK, saved)
}

// DELETE /api/roster/students?id= or ?roll_no=
func (s *Server) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	deleted, err := s.roster.DeleteStudent(r.Context(), roster.StudentKey{
		ID:     query.Get("id"),
		RollNo: query.Get("roll_no"),
	})
	if err != nil {
		s.sendRosterError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: deleted})
}

// DELETE /api/roster/teachers?id= or ?course_code=&teacher_email=
func (s *Server) handleDeleteTeacher(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	deleted, err := s.roster.DeleteTeacher(r.Context(), roster.TeacherKey{
		ID:           query.Get("id"),
		CourseCode:   query.Get("course_code"),
		TeacherEmail: query.Get("teacher_email"),
	})
	if err != nil {
		s.sendRosterError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: deleted})
}
