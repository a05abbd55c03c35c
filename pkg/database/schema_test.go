package database

import (
	"testing"
)

func TestSchemaValidator_EmptyDatabase(t *testing.T) {
	db := openTestDB(t)
	validator := NewSchemaValidator(db, DriverSQLite)

	if err := validator.ValidateTablesExist(); err == nil {
		t.Error("ValidateTablesExist should fail on empty database")
	}
}

func TestSchemaValidator_AfterMigrations(t *testing.T) {
	db := openTestDB(t)
	if err := NewMigrationManager(db, DriverSQLite).ApplyMigrations(); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	validator := NewSchemaValidator(db, DriverSQLite)
	if err := validator.Validate(); err != nil {
		t.Errorf("Schema should validate after migrations: %v", err)
	}
}

func TestSchemaValidator_MissingIndex(t *testing.T) {
	db := openTestDB(t)
	if err := NewMigrationManager(db, DriverSQLite).ApplyMigrations(); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	if _, err := db.Exec("DROP INDEX idx_conversations_pair"); err != nil {
		t.Fatalf("Failed to drop index: %v", err)
	}

	if err := NewSchemaValidator(db, DriverSQLite).ValidateIndexes(); err == nil {
		t.Error("ValidateIndexes should report the dropped index")
	}
}
