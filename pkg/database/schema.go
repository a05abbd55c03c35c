package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator provides database schema validation functionality
// ARCHITECTURAL DISCOVERY: Separate validation component enables deployment
// verification without coupling to the migration system
type SchemaValidator struct {
	db     *sql.DB
	driver string
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB, driver string) *SchemaValidator {
	return &SchemaValidator{db: db, driver: driver}
}

// requiredColumns lists the columns the stores read and write per table
var requiredColumns = map[string][]string{
	"identities":        {"id", "email", "password_hash", "role", "password_set", "created_at", "updated_at"},
	"student_course":    {"id", "roll_no", "name", "email", "course_code"},
	"course_teacher":    {"id", "course_code", "teacher_name", "teacher_email"},
	"conversations":     {"id", "participant1", "participant2", "participant_low", "participant_high", "created_at"},
	"messages":          {"id", "conversation_id", "sender", "content", "created_at"},
	"schema_migrations": {"version", "applied_at"},
}

var requiredIndexes = map[string]string{
	"idx_conversations_pair":         "One conversation per participant pair",
	"idx_messages_conversation_time": "Message history retrieval",
	"idx_student_course_email":       "Student roster lookups",
	"idx_course_teacher_email":       "Teacher roster lookups",
}

// Validate runs every check
func (v *SchemaValidator) Validate() error {
	if err := v.ValidateTablesExist(); err != nil {
		return err
	}
	if err := v.ValidateTableStructure(); err != nil {
		return err
	}
	if err := v.ValidateIndexes(); err != nil {
		return err
	}
	return v.ValidateConstraints()
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	for table := range requiredColumns {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}
	return nil
}

// ValidateTableStructure verifies every required column is present
func (v *SchemaValidator) ValidateTableStructure() error {
	for table, columns := range requiredColumns {
		found, err := v.columns(table)
		if err != nil {
			return fmt.Errorf("error reading columns of %s: %w", table, err)
		}
		for _, column := range columns {
			if !found[column] {
				return fmt.Errorf("%s table structure invalid: column %s not found", table, column)
			}
		}
	}
	return nil
}

// ValidateIndexes verifies that all required indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	for index, purpose := range requiredIndexes {
		exists, err := v.indexExists(index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}
	return nil
}

// ValidateConstraints verifies that the foreign key from messages to conversations
// is enforced, the probe runs in a transaction that is always rolled back
func (v *SchemaValidator) ValidateConstraints() error {
	tx, err := v.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	insert := `INSERT INTO messages (id, conversation_id, sender, content) VALUES (?, ?, ?, ?)`
	if v.driver == DriverPostgres {
		insert = `INSERT INTO messages (id, conversation_id, sender, content) VALUES ($1, $2, $3, $4)`
	}
	if _, err := tx.Exec(insert, "schema-probe", "missing-conversation", "probe", "probe"); err == nil {
		return fmt.Errorf("foreign key constraint not enforced: messages.conversation_id")
	}
	return nil
}

func (v *SchemaValidator) tableExists(table string) (bool, error) {
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?"
	if v.driver == DriverPostgres {
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1"
	}
	var count int
	if err := v.db.QueryRow(query, table).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) indexExists(index string) (bool, error) {
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?"
	if v.driver == DriverPostgres {
		query = "SELECT COUNT(*) FROM pg_indexes WHERE schemaname = current_schema() AND indexname = $1"
	}
	var count int
	if err := v.db.QueryRow(query, index).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) columns(table string) (map[string]bool, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if v.driver == DriverPostgres {
		rows, err = v.db.Query("SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1", table)
	} else {
		rows, err = v.db.Query("SELECT name FROM pragma_table_info(?)", table)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		found[name] = true
	}
	return found, rows.Err()
}
