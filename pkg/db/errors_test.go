package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(gorm.ErrRecordNotFound))
	assert.True(t, IsNotFound(fmt.Errorf("loading row: %w", gorm.ErrRecordNotFound)))
	assert.False(t, IsNotFound(errors.New("connection refused")))
	assert.False(t, IsNotFound(nil))
}

func TestIsUniqueViolationMatchesDriverSQLSTATE(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", Message: "constraint violated"}

	assert.True(t, IsUniqueViolation(pgErr), "SQLSTATE alone must classify, without the message fallback")
	assert.True(t, IsUniqueViolation(fmt.Errorf("inserting engagement: %w", pgErr)))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503", Message: "fk violated"}))
}

func TestIsUniqueViolationSqliteFallback(t *testing.T) {
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: engagements.n_ej")))
	assert.True(t, IsUniqueViolation(errors.New(`duplicate key value violates unique constraint "engagements_identity"`)))
	assert.False(t, IsUniqueViolation(errors.New("database is locked")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestIsDeadlockMatchesDriverSQLSTATE(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "40P01", Message: "aborted"}

	assert.True(t, IsDeadlock(pgErr))
	assert.True(t, IsDeadlock(fmt.Errorf("updating amounts: %w", pgErr)))
	assert.True(t, IsDeadlock(errors.New("ERROR: deadlock detected (SQLSTATE 40P01)")))
	assert.False(t, IsDeadlock(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsDeadlock(nil))
}

func TestIsRetryableWrite(t *testing.T) {
	assert.True(t, IsRetryableWrite(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsRetryableWrite(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, IsRetryableWrite(errors.New("connection refused")))
}
