package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

// IsUniqueViolation reports whether err is a unique constraint failure. When
// constraintName is set, Postgres errors must also name that constraint.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if code, constraint, ok := postgresCode(err); ok {
		return code == pgUniqueViolation && (constraintName == "" || constraint == constraintName)
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

// IsCheckViolation reports whether err is a CHECK constraint failure.
func IsCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrCheckConstraintViolated) {
		return true
	}
	if code, _, ok := postgresCode(err); ok {
		return code == pgCheckViolation
	}
	return strings.Contains(err.Error(), "CHECK constraint failed")
}

func postgresCode(err error) (code, constraint string, ok bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code, pgxErr.ConstraintName, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint, true
	}
	return "", "", false
}
