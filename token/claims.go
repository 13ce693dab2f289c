package token

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Kind distinguishes the two token flavours the issuer mints. Access and
// refresh tokens are signed with distinct keys, so a leaked access-signing
// key cannot forge refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims is the claim set carried by both token kinds. The tenant ID pins
// every downstream storage call to the tenant's namespace.
type Claims struct {
	UserID    string
	TenantID  string
	Email     string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Pair is the result of IssuePair: both tokens plus the access token's
// lifetime in seconds, which is what login/register/refresh return to clients.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Hash returns the one-way digest of a raw refresh token. Only the hash is
// persisted; it is the join key into the session store.
func Hash(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}
