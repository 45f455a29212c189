package auth

import (
	"strings"

	"github.com/angelmondragon/invoice-review/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	Reviewer string
	Role     enums.ReviewerRole
	JTI      string
}

// AccessTokenClaims represents the typed JWT issued to reviewers.
// The registered ID (jti) doubles as the reviewer-session id.
type AccessTokenClaims struct {
	Reviewer string             `json:"reviewer,omitempty"`
	Role     enums.ReviewerRole `json:"role"`
	jwt.RegisteredClaims
}

// StampName is the identity written into reviewed_by columns.
func (c *AccessTokenClaims) StampName() string {
	if name := strings.TrimSpace(c.Reviewer); name != "" {
		return name
	}
	return c.Role.String()
}

// SessionID returns the jti.
func (c *AccessTokenClaims) SessionID() string {
	return c.ID
}
