// Package pagination implements keyset cursors for newest-first listings.
// A cursor is opaque to clients: base64url over a small JSON position.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params are the raw limit and cursor from a query string.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the (created_at, id) position of the last row on a page.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

type wireCursor struct {
	At int64     `json:"at"`
	ID uuid.UUID `json:"id"`
}

var errMalformedCursor = errors.New("malformed cursor")

func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// LimitWithBuffer asks the store for one extra row so Trim can tell whether
// another page follows.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

func EncodeCursor(c Cursor) string {
	w := wireCursor{ID: c.ID}
	if !c.CreatedAt.IsZero() {
		w.At = c.CreatedAt.UnixNano()
	}
	raw, _ := json.Marshal(w)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// ParseCursor decodes a cursor. A blank value means the first page.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedCursor, err)
	}
	var w wireCursor
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedCursor, err)
	}
	if w.At <= 0 {
		return nil, errMalformedCursor
	}
	return &Cursor{CreatedAt: time.Unix(0, w.At).UTC(), ID: w.ID}, nil
}

// Trim cuts rows fetched with LimitWithBuffer down to limit and returns the
// cursor of the next page, or "" on the last page.
func Trim[T any](rows []T, limit int, position func(T) Cursor) ([]T, string) {
	limit = NormalizeLimit(limit)
	if len(rows) <= limit {
		return rows, ""
	}
	rows = rows[:limit]
	return rows, EncodeCursor(position(rows[len(rows)-1]))
}
