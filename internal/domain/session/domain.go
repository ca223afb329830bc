package session

import (
	"strconv"
)

// TokenClass namespaces jti cache entries and validity windows.
// Exactly one jti is valid per (class, user) pair at any time.
type TokenClass string

const (
	ClassAccess  TokenClass = "access"
	ClassRefresh TokenClass = "refresh"
)

// CacheKey derives the cache key holding the currently valid jti
// for this token class and user.
func (c TokenClass) CacheKey(userID int64) string {
	switch c {
	case ClassRefresh:
		return "refresh:jti:" + strconv.FormatInt(userID, 10)
	default:
		return "jwt:jti:" + strconv.FormatInt(userID, 10)
	}
}

// TokenPair is the result of a session issuance or rotation.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
