package tenant

import "time"

// Session pins the resolved tenant for the remainder of a login session.
// Every store and sync call takes the Session explicitly; once created, the
// pinned id never changes even if re-resolving the code would answer
// differently.
type Session struct {
	tenantID  string
	userID    string
	startedAt time.Time
}

// NewSession pins a tenant id and the authenticated user for this session.
func NewSession(tenantID, userID string) *Session {
	return &Session{
		tenantID:  tenantID,
		userID:    userID,
		startedAt: time.Now(),
	}
}

// Tenant returns the pinned tenant id.
func (s *Session) Tenant() string {
	return s.tenantID
}

// User returns the authenticated user id, if any.
func (s *Session) User() string {
	return s.userID
}

// StartedAt returns when the session was established.
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}
