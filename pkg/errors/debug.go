package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const maxChainDepth = 16

// ErrorDump flattens an error chain into loggable fields. Postgres details
// are filled from whichever driver produced the error, pgx or lib/pq.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Retryable  bool     `json:"retryable"`
	Chain      []string `json:"chain,omitempty"`
	PG         PGFields `json:"pg,omitempty"`
}

// PGFields is the subset of a Postgres error worth logging.
type PGFields struct {
	Code       string `json:"code,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
		d.Retryable = MetadataFor(te.Code()).Retryable
	}
	for e := err; e != nil && len(d.Chain) < maxChainDepth; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.PG = postgresFields(err)
	return d
}

func postgresFields(err error) PGFields {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return PGFields{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return PGFields{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return PGFields{}
}

// Fields returns the dump as structured log fields, leaving out empty
// Postgres attributes.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error_code":  string(d.Code),
		"error_chain": d.Chain,
		"retryable":   d.Retryable,
	}
	for key, value := range map[string]string{
		"pg_code":       d.PG.Code,
		"pg_constraint": d.PG.Constraint,
		"pg_table":      d.PG.Table,
		"pg_column":     d.PG.Column,
		"pg_detail":     d.PG.Detail,
		"pg_message":    d.PG.Message,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	return fields
}
