// Package session carries the caller's credential and identity into every
// component that talks to the backend.
package session

import "strings"

// Session is the authenticated local user.
type Session struct {
	Token  string
	UserID int64
	Name   string
}

// New creates a session for the given credential and identity.
func New(token string, userID int64, name string) Session {
	return Session{
		Token:  strings.TrimSpace(token),
		UserID: userID,
		Name:   name,
	}
}

// Valid reports whether a credential is present.
func (s Session) Valid() bool {
	return s.Token != ""
}

// WithToken returns a copy of the session using a different credential.
func (s Session) WithToken(token string) Session {
	s.Token = strings.TrimSpace(token)
	return s
}

// FirstName returns the first word of a display name.
func FirstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
