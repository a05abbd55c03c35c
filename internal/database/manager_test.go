package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"connected/internal/logging"
	"connected/pkg/database"
	"connected/pkg/interfaces"
	"connected/pkg/types"
)

// Test database setup helpers
func setupTestDB(t *testing.T) *Manager {
	t.Helper()

	config := database.DefaultConfig()
	config.DSN = filepath.Join(t.TempDir(), "test.db")
	config.MaxConnections = 4

	manager, err := NewManager(config, logging.Discard())
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })

	if err := manager.Migrate(); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	if err := manager.ValidateSchema(); err != nil {
		t.Fatalf("Schema invalid after migration: %v", err)
	}
	return manager
}

func newConversation(a, b string) *types.Conversation {
	low, high := types.OrderedPair(a, b)
	return &types.Conversation{
		ID:              fmt.Sprintf("conv-%s-%s", low, high),
		Participant1:    a,
		Participant2:    b,
		ParticipantLow:  low,
		ParticipantHigh: high,
		CreatedAt:       time.Now().UTC(),
	}
}

// FUNCTIONAL VALIDATION TEST: Identity create, read and update
func TestManager_Identities(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	identity := &types.Identity{
		ID:        "user-1",
		Email:     "Prof.X@Uni.edu",
		Role:      types.RoleTeacher,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := manager.CreateIdentity(ctx, identity); err != nil {
		t.Fatalf("CreateIdentity failed: %v", err)
	}

	got, err := manager.GetIdentityByEmail(ctx, " prof.x@uni.edu ")
	if err != nil {
		t.Fatalf("GetIdentityByEmail failed: %v", err)
	}
	if got.Email != "prof.x@uni.edu" {
		t.Errorf("Expected normalized email, got %s", got.Email)
	}
	if got.PasswordHash != nil || got.PasswordSet {
		t.Error("New identity should have no password")
	}
	if got.Role != types.RoleTeacher {
		t.Errorf("Expected teacher role, got %q", got.Role)
	}

	hash := "hashed"
	got.PasswordHash = &hash
	got.PasswordSet = true
	got.UpdatedAt = now.Add(time.Minute)
	if err := manager.UpdateIdentity(ctx, got); err != nil {
		t.Fatalf("UpdateIdentity failed: %v", err)
	}

	updated, err := manager.GetIdentityByID(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetIdentityByID failed: %v", err)
	}
	if updated.PasswordHash == nil || *updated.PasswordHash != "hashed" || !updated.PasswordSet {
		t.Errorf("Password update not persisted: %+v", updated)
	}

	if _, err := manager.GetIdentityByEmail(ctx, "nobody@uni.edu"); !errors.Is(err, interfaces.ErrIdentityNotFound) {
		t.Errorf("Expected ErrIdentityNotFound, got %v", err)
	}
	if err := manager.UpdateIdentity(ctx, &types.Identity{ID: "missing"}); !errors.Is(err, interfaces.ErrIdentityNotFound) {
		t.Errorf("Expected ErrIdentityNotFound on update, got %v", err)
	}

	duplicate := *identity
	duplicate.ID = "user-2"
	if err := manager.CreateIdentity(ctx, &duplicate); err == nil {
		t.Error("Expected unique email violation")
	}

	all, err := manager.ListIdentities(ctx)
	if err != nil || len(all) != 1 {
		t.Errorf("Expected one identity, got %d (%v)", len(all), err)
	}
}

// FUNCTIONAL VALIDATION TEST: Roster upsert, lookups and deletes
func TestManager_Roster(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	students := []types.StudentRow{
		{ID: "s1", RollNo: "R1", Name: "Ada", Email: "Ada@uni.edu", CourseCode: "CS101, MA201"},
		{ID: "s2", RollNo: "R2", Name: "Ben", Email: "ben@uni.edu", CourseCode: "CS1010"},
	}
	teachers := []types.TeacherRow{
		{ID: "t1", CourseCode: "CS101", TeacherName: "Prof X", TeacherEmail: "prof.x@uni.edu"},
		{ID: "t2", CourseCode: "MA201", TeacherName: "Prof Y", TeacherEmail: "prof.y@uni.edu"},
		{ID: "t3", CourseCode: "PH110", TeacherName: "Prof X", TeacherEmail: "Prof.X@uni.edu"},
	}

	if err := manager.UpsertStudents(ctx, students); err != nil {
		t.Fatalf("UpsertStudents failed: %v", err)
	}
	if err := manager.UpsertTeachers(ctx, teachers); err != nil {
		t.Fatalf("UpsertTeachers failed: %v", err)
	}

	// Upsert by id updates in place
	students[1].Name = "Benjamin"
	if err := manager.UpsertStudents(ctx, students[1:]); err != nil {
		t.Fatalf("UpsertStudents update failed: %v", err)
	}
	listed, err := manager.ListStudents(ctx)
	if err != nil {
		t.Fatalf("ListStudents failed: %v", err)
	}
	if len(listed) != 2 || listed[1].Name != "Benjamin" {
		t.Errorf("Unexpected students after update: %+v", listed)
	}

	if ok, _ := manager.TeacherExists(ctx, "PROF.X@uni.edu"); !ok {
		t.Error("Expected teacher to exist case-insensitively")
	}
	if ok, _ := manager.StudentExists(ctx, "ada@uni.edu"); !ok {
		t.Error("Expected student to exist case-insensitively")
	}
	if ok, _ := manager.TeacherExists(ctx, "ada@uni.edu"); ok {
		t.Error("Student must not be reported as a teacher")
	}

	row, err := manager.FindStudentByEmail(ctx, "ada@uni.edu")
	if err != nil || row.ID != "s1" {
		t.Errorf("FindStudentByEmail returned %+v, %v", row, err)
	}
	if _, err := manager.FindStudentByEmail(ctx, "zed@uni.edu"); !errors.Is(err, interfaces.ErrRowNotFound) {
		t.Errorf("Expected ErrRowNotFound, got %v", err)
	}

	assignments, err := manager.TeacherAssignments(ctx, "prof.x@uni.edu")
	if err != nil || len(assignments) != 2 {
		t.Errorf("Expected two assignments, got %d (%v)", len(assignments), err)
	}

	forCourses, err := manager.TeachersForCourses(ctx, []string{"cs101", " MA201 "})
	if err != nil || len(forCourses) != 2 {
		t.Errorf("Expected two course teachers, got %d (%v)", len(forCourses), err)
	}
	if none, err := manager.TeachersForCourses(ctx, nil); err != nil || len(none) != 0 {
		t.Errorf("Empty course list should return nothing, got %v (%v)", none, err)
	}

	inCourse, err := manager.StudentsInCourse(ctx, "CS101")
	if err != nil {
		t.Fatalf("StudentsInCourse failed: %v", err)
	}
	if len(inCourse) != 1 || inCourse[0].ID != "s1" {
		t.Errorf("Expected only s1 in CS101, got %+v", inCourse)
	}

	if n, err := manager.DeleteStudentByRollNo(ctx, "R2"); err != nil || n != 1 {
		t.Errorf("DeleteStudentByRollNo removed %d (%v)", n, err)
	}
	if n, err := manager.DeleteStudent(ctx, "missing"); err != nil || n != 0 {
		t.Errorf("Deleting a missing row removed %d (%v)", n, err)
	}
	if n, err := manager.DeleteTeacherByCourse(ctx, "PH110", "prof.x@uni.edu"); err != nil || n != 1 {
		t.Errorf("DeleteTeacherByCourse removed %d (%v)", n, err)
	}
	if n, err := manager.DeleteTeacher(ctx, "t2"); err != nil || n != 1 {
		t.Errorf("DeleteTeacher removed %d (%v)", n, err)
	}

	remaining, _ := manager.ListTeachers(ctx)
	if len(remaining) != 1 || remaining[0].ID != "t1" {
		t.Errorf("Unexpected teachers after delete: %+v", remaining)
	}
}

// FUNCTIONAL VALIDATION TEST: One conversation per unordered pair
func TestManager_ConversationPairIsUnique(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	first := newConversation("student@uni.edu", "prof@uni.edu")
	if err := manager.CreateConversation(ctx, first); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	// Reversed order, different id, must be dropped without error
	second := newConversation("prof@uni.edu", "student@uni.edu")
	second.ID = "other-id"
	if err := manager.CreateConversation(ctx, second); err != nil {
		t.Fatalf("Conflicting CreateConversation should be a no-op, got %v", err)
	}

	found, err := manager.FindConversation(ctx, first.ParticipantLow, first.ParticipantHigh)
	if err != nil {
		t.Fatalf("FindConversation failed: %v", err)
	}
	if found.ID != first.ID {
		t.Errorf("Expected first conversation to win, got %s", found.ID)
	}

	byID, err := manager.GetConversation(ctx, first.ID)
	if err != nil || byID.Participant1 != "student@uni.edu" {
		t.Errorf("GetConversation returned %+v, %v", byID, err)
	}
	if _, err := manager.GetConversation(ctx, "other-id"); !errors.Is(err, interfaces.ErrConversationNotFound) {
		t.Errorf("Expected ErrConversationNotFound, got %v", err)
	}
}

// FUNCTIONAL VALIDATION TEST: Concurrent creations leave exactly one row
func TestManager_ConcurrentConversationCreation(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv := newConversation("a@uni.edu", "b@uni.edu")
			conv.ID = fmt.Sprintf("conv-%d", i)
			errs <- manager.CreateConversation(ctx, conv)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Concurrent create failed: %v", err)
		}
	}

	var count int
	if err := manager.DB().Get(&count, "SELECT COUNT(*) FROM conversations"); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected one conversation, got %d", count)
	}
}

// FUNCTIONAL VALIDATION TEST: Messages come back oldest first
func TestManager_Messages(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	conv := newConversation("a@uni.edu", "b@uni.edu")
	if err := manager.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	inserts := []types.Message{
		{ID: "m3", ConversationID: conv.ID, Sender: "a@uni.edu", Content: "third", CreatedAt: base.Add(2 * time.Second)},
		{ID: "m1", ConversationID: conv.ID, Sender: "b@uni.edu", Content: "first", CreatedAt: base},
		{ID: "m2", ConversationID: conv.ID, Sender: "a@uni.edu", Content: "second", CreatedAt: base.Add(1500 * time.Millisecond)},
	}
	for i := range inserts {
		if err := manager.InsertMessage(ctx, &inserts[i]); err != nil {
			t.Fatalf("InsertMessage failed: %v", err)
		}
	}

	messages, err := manager.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(messages))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if messages[i].ID != want {
			t.Errorf("Message %d = %s, want %s", i, messages[i].ID, want)
		}
	}
	if !messages[1].CreatedAt.Equal(base.Add(1500 * time.Millisecond)) {
		t.Errorf("Timestamp not preserved: %v", messages[1].CreatedAt)
	}

	orphan := &types.Message{ID: "mx", ConversationID: "missing", Sender: "a@uni.edu", Content: "x", CreatedAt: base}
	if err := manager.InsertMessage(ctx, orphan); err == nil {
		t.Error("Expected foreign key violation for unknown conversation")
	}

	empty, err := manager.ListMessages(ctx, "missing")
	if err != nil || len(empty) != 0 {
		t.Errorf("Expected no messages, got %d (%v)", len(empty), err)
	}
}

// FUNCTIONAL VALIDATION TEST: Health check and shutdown
func TestManager_HealthAndClose(t *testing.T) {
	manager := setupTestDB(t)
	ctx := context.Background()

	if err := manager.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}

	if err := manager.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := manager.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}

	err := manager.InsertMessage(ctx, &types.Message{ID: "late"})
	if !errors.Is(err, ErrManagerClosed) {
		t.Errorf("Expected ErrManagerClosed for a write after close, got %v", err)
	}
}

func shuttingDown(m *Manager) bool {
	select {
	case <-m.shutdown:
		return true
	default:
		return false
	}
}

// TECHNICAL VALIDATION TEST: A write queued while Close runs returns instead of blocking
func TestManager_WriteQueuedDuringClose(t *testing.T) {
	for i := 0; i < 10; i++ {
		manager := setupTestDB(t)
		ctx := context.Background()

		// STEP 1: Hold the writer busy
		release := make(chan struct{})
		busy := make(chan struct{})
		go func() {
			_ = manager.executeWrite(ctx, func(*sqlx.DB) error {
				close(busy)
				<-release
				return nil
			})
		}()
		<-busy

		// STEP 2: Queue a second write behind it
		queued := make(chan error, 1)
		go func() {
			queued <- manager.executeWrite(ctx, func(*sqlx.DB) error { return nil })
		}()
		deadline := time.Now().Add(2 * time.Second)
		for len(manager.writeChannel) == 0 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}

		// STEP 3: Close while the second write is still queued
		closed := make(chan error, 1)
		go func() { closed <- manager.Close() }()
		for !shuttingDown(manager) {
			time.Sleep(time.Millisecond)
		}
		close(release)

		select {
		case err := <-queued:
			if err != nil && !errors.Is(err, ErrManagerClosed) {
				t.Fatalf("Queued write returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Queued write blocked after Close")
		}
		if err := <-closed; err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}
}

// FUNCTIONAL VALIDATION TEST: Invalid configuration is rejected before opening
func TestNewManager_InvalidConfig(t *testing.T) {
	config := database.DefaultConfig()
	config.Driver = "mysql"

	if _, err := NewManager(config, logging.Discard()); err == nil {
		t.Error("Expected error for unsupported driver")
	}
}
