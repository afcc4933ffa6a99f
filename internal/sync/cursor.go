package sync

import (
	"encoding/json"
	"fmt"
	"time"
)

// Cursor marks the boundary between already-seen and not-yet-seen items.
// The zero Cursor means nothing has been seen.
type Cursor struct {
	t time.Time
}

// CursorAt returns a cursor positioned at t.
func CursorAt(t time.Time) Cursor {
	if t.IsZero() {
		return Cursor{}
	}
	return Cursor{t: t.UTC()}
}

// ParseCursor parses an RFC 3339 timestamp. An empty string is the zero cursor.
func ParseCursor(s string) (Cursor, error) {
	if s == "" {
		return Cursor{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Cursor{}, fmt.Errorf("parsing cursor %q: %w", s, err)
	}
	return CursorAt(t), nil
}

// MustParseCursor is ParseCursor for constants and tests.
func MustParseCursor(s string) Cursor {
	c, err := ParseCursor(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Cursor) IsZero() bool        { return c.t.IsZero() }
func (c Cursor) Time() time.Time     { return c.t }
func (c Cursor) After(o Cursor) bool { return c.t.After(o.t) }
func (c Cursor) Equal(o Cursor) bool { return c.t.Equal(o.t) }

// Advance returns the later of c and t. Cursors never move backward.
func (c Cursor) Advance(t time.Time) Cursor {
	if t.After(c.t) {
		return CursorAt(t)
	}
	return c
}

// String returns the wire form, or "" for the zero cursor.
func (c Cursor) String() string {
	if c.t.IsZero() {
		return ""
	}
	return c.t.Format(time.RFC3339Nano)
}

func (c Cursor) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Cursor) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseCursor(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
