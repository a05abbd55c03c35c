package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	// ARCHITECTURAL DISCOVERY: drivers register themselves under the names the
	// config selects, sqlite3 for local runs and pgx for postgres deployments
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	dbconfig "connected/pkg/database"
	"connected/pkg/interfaces"
	"connected/pkg/types"
)

// ErrManagerClosed is returned for writes issued or left queued after Close
var ErrManagerClosed = errors.New("database manager is closed")

// Manager implements the DatabaseManager interface
type Manager struct {
	db           *sqlx.DB
	config       *dbconfig.Config
	logger       *slog.Logger
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	loopDone     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

// writeOperation represents a database write operation
type writeOperation struct {
	operation func(*sqlx.DB) error
	result    chan error
}

// NewManager opens the database and starts the writer goroutine when the driver needs one
func NewManager(config *dbconfig.Config, logger *slog.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sqlx.Open(config.Driver, config.DataSourceName())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// FUNCTIONAL DISCOVERY: Connection pool configuration critical for concurrent reads
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if config.Driver == dbconfig.DriverSQLite {
		if err := dbconfig.ApplySQLiteOptimizations(db.DB); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	manager := &Manager{
		db:           db,
		config:       config,
		logger:       logger.With("component", "database", "driver", config.Driver),
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		loopDone:     make(chan struct{}),
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention,
	// postgres handles concurrent writers itself
	if config.Driver == dbconfig.DriverSQLite {
		manager.wg.Add(1)
		go manager.writeLoop()
	} else {
		close(manager.loopDone)
	}

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()
	defer close(m.loopDone)

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				m.logger.Debug("database write failed", "error", err)
			}
			op.result <- err

		case <-m.shutdown:
			m.logger.Info("database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(*sqlx.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	if m.config.Driver != dbconfig.DriverSQLite {
		return operation(m.db)
	}

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		// TECHNICAL DISCOVERY: an operation queued while Close runs may never be picked up,
		// the loop exiting releases the waiter instead of leaving it blocked
		select {
		case err := <-result:
			return err
		case <-m.loopDone:
			select {
			case err := <-result:
				return err
			default:
				return ErrManagerClosed
			}
		}
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return ErrManagerClosed
	}
}

// q rewrites ? placeholders for the active driver
func (m *Manager) q(query string) string {
	return m.db.Rebind(query)
}

// Migrate applies the embedded migrations for the active driver
func (m *Manager) Migrate() error {
	return dbconfig.NewMigrationManager(m.db.DB, m.config.Driver).ApplyMigrations()
}

// ValidateSchema checks that the migrated schema is complete
func (m *Manager) ValidateSchema() error {
	return dbconfig.NewSchemaValidator(m.db.DB, m.config.Driver).Validate()
}

// ---- identities ----

const identityColumns = `id, email, password_hash, role, password_set, created_at, updated_at`

func (m *Manager) GetIdentityByEmail(ctx context.Context, email string) (*types.Identity, error) {
	var identity types.Identity
	err := m.db.GetContext(ctx, &identity,
		m.q(`SELECT `+identityColumns+` FROM identities WHERE email = ?`), types.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("failed to query identity: %w", err)
	}
	return &identity, nil
}

func (m *Manager) GetIdentityByID(ctx context.Context, id string) (*types.Identity, error) {
	var identity types.Identity
	err := m.db.GetContext(ctx, &identity,
		m.q(`SELECT `+identityColumns+` FROM identities WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("failed to query identity: %w", err)
	}
	return &identity, nil
}

// ListIdentities returns every identity ordered by email
func (m *Manager) ListIdentities(ctx context.Context) ([]types.Identity, error) {
	var identities []types.Identity
	if err := m.db.SelectContext(ctx, &identities,
		`SELECT `+identityColumns+` FROM identities ORDER BY email`); err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	return identities, nil
}

func (m *Manager) CreateIdentity(ctx context.Context, identity *types.Identity) error {
	return m.executeWrite(ctx, func(db *sqlx.DB) error {
		_, err := db.ExecContext(ctx, m.q(`
			INSERT INTO identities (id, email, password_hash, role, password_set, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`),
			identity.ID,
			types.NormalizeEmail(identity.Email),
			identity.PasswordHash,
			string(identity.Role),
			identity.PasswordSet,
			identity.CreatedAt,
			identity.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert identity: %w", err)
		}
		return nil
	})
}

func (m *Manager) UpdateIdentity(ctx context.Context, identity *types.Identity) error {
	return m.executeWrite(ctx, func(db *sqlx.DB) error {
		result, err := db.ExecContext(ctx, m.q(`
			UPDATE identities
			SET password_hash = ?, role = ?, password_set = ?, updated_at = ?
			WHERE id = ?
		`),
			identity.PasswordHash,
			string(identity.Role),
			identity.PasswordSet,
			identity.UpdatedAt,
			identity.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update identity: %w", err)
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return interfaces.ErrIdentityNotFound
		}
		return nil
	})
}

// ---- roster ----

const (
	studentColumns = `id, roll_no, name, email, course_code`
	teacherColumns = `id, course_code, teacher_name, teacher_email`
)

func (m *Manager) ListStudents(ctx context.Context) ([]types.StudentRow, error) {
	var rows []types.StudentRow
	if err := m.db.SelectContext(ctx, &rows,
		`SELECT `+studentColumns+` FROM student_course ORDER BY roll_no, name, id`); err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	return rows, nil
}

func (m *Manager) ListTeachers(ctx context.Context) ([]types.TeacherRow, error) {
	var rows []types.TeacherRow
	if err := m.db.SelectContext(ctx, &rows,
		`SELECT `+teacherColumns+` FROM course_teacher ORDER BY course_code, teacher_name, id`); err != nil {
		return nil, fmt.Errorf("failed to list teachers: %w", err)
	}
	return rows, nil
}

// UpsertStudents writes all rows in one transaction, keyed by id
// FUNCTIONAL DISCOVERY: ON CONFLICT ... DO UPDATE is understood by both sqlite and postgres
func (m *Manager) UpsertStudents(ctx context.Context, rows []types.StudentRow) error {
	if len(rows) == 0 {
		return nil
	}
	return m.executeWrite(ctx, func(db *sqlx.DB) error {
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for i := range rows {
			_, err := tx.NamedExecContext(ctx, `
				INSERT INTO student_course (id, roll_no, name, email, course_code)
				VALUES (:id, :roll_no, :name, :email, :course_code)
				ON CONFLICT (id) DO UPDATE SET
					roll_no = excluded.roll_no,
					name = excluded.name,
					email = excluded.email,
					course_code = excluded.course_code
			`, &rows[i])
			if err != nil {
				return fmt.Errorf("failed to upsert student %s: %w", rows[i].ID, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit student upsert: %w", err)
		}
		return nil
	})
}

func (m *Manager) UpsertTeachers(ctx context.Context, rows []types.TeacherRow) error {
	if len(rows) == 0 {
		return nil
	}
	return m.executeWrite(ctx, func(db *sqlx.DB) error {
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for i := range rows {
			_, err := tx.NamedExecContext(ctx, `
				INSERT INTO course_teacher (id, course_code, teacher_name, teacher_email)
				VALUES (:id, :course_code, :teacher_name, :teacher_email)
				ON CONFLICT (id) DO UPDATE SET
					course_code = excluded.course_code,
					teacher_name = excluded.teacher_name,
					teacher_email = excluded.teacher_email
			`, &rows[i])
			if err != nil {
				return fmt.Errorf("failed to upsert teacher %s: %w", rows[i].ID, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit teacher upsert: %w", err)
		}
		return nil
	})
}

// deleteWhere runs a DELETE and reports the number of removed rows
func (m *Manager) deleteWhere(ctx context.Context, query string, args ...interface{}) (int64, error) {
	var affected int64
	err := m.executeWrite(ctx, func(db *sqlx.DB) error {
		result, err := db.ExecContext(ctx, m.q(query), args...)
		if err != nil {
			return fmt.Errorf("failed to delete rows: %w", err)
		}
		affected, err = result.RowsAffected()
		return err
	})
	return affected, err
}

func (m *Manager) DeleteStudent(ctx context.Context, id string) (int64, error) {
	return m.deleteWhere(ctx, `DELETE FROM student_course WHERE id = ?`, id)
}

func (m *Manager) DeleteStudentByRollNo(ctx context.Context, rollNo string) (int64, error) {
	return m.deleteWhere(ctx, `DELETE FROM student_course WHERE roll_no = ?`, strings.TrimSpace(rollNo))
}

func (m *Manager) DeleteTeacher(ctx context.Context, id string) (int64, error) {
	return m.deleteWhere(ctx, `DELETE FROM course_teacher WHERE id = ?`, id)
}

func (m *Manager) DeleteTeacherByCourse(ctx context.Context, courseCode, teacherEmail string) (int64, error) {
	return m.deleteWhere(ctx,
		`DELETE FROM course_teacher WHERE course_code = ? AND lower(teacher_email) = ?`,
		strings.TrimSpace(courseCode), types.NormalizeEmail(teacherEmail))
}

func (m *Manager) exists(ctx context.Context, query, email string) (bool, error) {
	var count int
	if err := m.db.GetContext(ctx, &count, m.q(query), types.NormalizeEmail(email)); err != nil {
		return false, fmt.Errorf("failed to query roster: %w", err)
	}
	return count > 0, nil
}

func (m *Manager) TeacherExists(ctx context.Context, email string) (bool, error) {
	return m.exists(ctx, `SELECT COUNT(*) FROM course_teacher WHERE lower(teacher_email) = ?`, email)
}

func (m *Manager) StudentExists(ctx context.Context, email string) (bool, error) {
	return m.exists(ctx, `SELECT COUNT(*) FROM student_course WHERE lower(email) = ?`, email)
}

func (m *Manager) FindStudentByEmail(ctx context.Context, email string) (*types.StudentRow, error) {
	var row types.StudentRow
	err := m.db.GetContext(ctx, &row, m.q(`
		SELECT `+studentColumns+` FROM student_course
		WHERE lower(email) = ?
		ORDER BY roll_no, id
		LIMIT 1
	`), types.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrRowNotFound
		}
		return nil, fmt.Errorf("failed to query student: %w", err)
	}
	return &row, nil
}

func (m *Manager) TeacherAssignments(ctx context.Context, email string) ([]types.TeacherRow, error) {
	var rows []types.TeacherRow
	if err := m.db.SelectContext(ctx, &rows, m.q(`
		SELECT `+teacherColumns+` FROM course_teacher
		WHERE lower(teacher_email) = ?
		ORDER BY course_code, id
	`), types.NormalizeEmail(email)); err != nil {
		return nil, fmt.Errorf("failed to query teacher assignments: %w", err)
	}
	return rows, nil
}

// TeachersForCourses returns the course_teacher rows for any of codes, case-insensitively
func (m *Manager) TeachersForCourses(ctx context.Context, codes []string) ([]types.TeacherRow, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	lowered := make([]string, len(codes))
	for i, code := range codes {
		lowered[i] = strings.ToLower(strings.TrimSpace(code))
	}

	// TECHNICAL DISCOVERY: sqlx.In expands the slice into one placeholder per element
	query, args, err := sqlx.In(`
		SELECT `+teacherColumns+` FROM course_teacher
		WHERE lower(course_code) IN (?)
		ORDER BY course_code, teacher_name, id
	`, lowered)
	if err != nil {
		return nil, fmt.Errorf("failed to build course query: %w", err)
	}

	var rows []types.TeacherRow
	if err := m.db.SelectContext(ctx, &rows, m.q(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query course teachers: %w", err)
	}
	return rows, nil
}

// StudentsInCourse returns students whose comma-joined course list contains code
// FUNCTIONAL DISCOVERY: LIKE narrows the scan, exact element matching happens in Go
// so CS10 never matches a student enrolled only in CS101
func (m *Manager) StudentsInCourse(ctx context.Context, code string) ([]types.StudentRow, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}

	var candidates []types.StudentRow
	if err := m.db.SelectContext(ctx, &candidates, m.q(`
		SELECT `+studentColumns+` FROM student_course
		WHERE lower(course_code) LIKE ?
		ORDER BY name, roll_no, id
	`), "%"+strings.ToLower(code)+"%"); err != nil {
		return nil, fmt.Errorf("failed to query course students: %w", err)
	}

	var rows []types.StudentRow
	for _, row := range candidates {
		if row.EnrolledIn(code) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// ---- conversations ----

const conversationColumns = `id, participant1, participant2, participant_low, participant_high, created_at`

func (m *Manager) FindConversation(ctx context.Context, low, high string) (*types.Conversation, error) {
	var conversation types.Conversation
	err := m.db.GetContext(ctx, &conversation, m.q(`
		SELECT `+conversationColumns+` FROM conversations
		WHERE participant_low = ? AND participant_high = ?
	`), low, high)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	return &conversation, nil
}

// CreateConversation inserts the conversation unless its pair already exists
// ARCHITECTURAL DISCOVERY: the unique pair index decides concurrent creations,
// the loser's insert is silently dropped
func (m *Manager) CreateConversation(ctx context.Context, conversation *types.Conversation) error {
	return m.executeWrite(ctx, func(db *sqlx.DB) error {
		_, err := db.ExecContext(ctx, m.q(`
			INSERT INTO conversations (id, participant1, participant2, participant_low, participant_high, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (participant_low, participant_high) DO NOTHING
		`),
			conversation.ID,
			conversation.Participant1,
			conversation.Participant2,
			conversation.ParticipantLow,
			conversation.ParticipantHigh,
			conversation.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert conversation: %w", err)
		}
		return nil
	})
}

func (m *Manager) GetConversation(ctx context.Context, id string) (*types.Conversation, error) {
	var conversation types.Conversation
	err := m.db.GetContext(ctx, &conversation,
		m.q(`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	return &conversation, nil
}

// ---- messages ----

func (m *Manager) InsertMessage(ctx context.Context, message *types.Message) error {
	return m.executeWrite(ctx, func(db *sqlx.DB) error {
		_, err := db.ExecContext(ctx, m.q(`
			INSERT INTO messages (id, conversation_id, sender, content, created_at)
			VALUES (?, ?, ?, ?, ?)
		`),
			message.ID,
			message.ConversationID,
			message.Sender,
			message.Content,
			message.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
}

// ListMessages returns the conversation history oldest first
// FUNCTIONAL DISCOVERY: id breaks created_at ties so repeated loads agree on order
func (m *Manager) ListMessages(ctx context.Context, conversationID string) ([]types.Message, error) {
	var messages []types.Message
	if err := m.db.SelectContext(ctx, &messages, m.q(`
		SELECT id, conversation_id, sender, content, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC
	`), conversationID); err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	return messages, nil
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM conversations"); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// DB returns the underlying connection pool
func (m *Manager) DB() *sqlx.DB {
	return m.db
}

// Close shuts down the database manager
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

var _ interfaces.DatabaseManager = (*Manager)(nil)
