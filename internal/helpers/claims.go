package helpers

import (
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// IdentityKey is where the auth middleware stores the caller in the gin context.
const IdentityKey = "user"

// Claims are the fields this service reads from a Supabase access token.
type Claims struct {
	Role        string `json:"role"`
	Email       string `json:"email"`
	AppMetadata struct {
		Provider  string   `json:"provider"`
		Providers []string `json:"providers"`
	} `json:"app_metadata"`
	UserMetadata map[string]interface{} `json:"user_metadata"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller, with the role taken from the user
// directory rather than from the token.
type Identity struct {
	UserID   uuid.UUID `json:"id"`
	Email    string    `json:"email,omitempty"`
	Username string    `json:"username,omitempty"`
	Role     string    `json:"role"`
}

func (id Identity) IsAdmin() bool {
	return id.Role == "admin"
}

func (id Identity) IsSelf(userID uuid.UUID) bool {
	return id.UserID != uuid.Nil && id.UserID == userID
}

func (id Identity) GetSafeRole() string {
	if id.Role == "" {
		return "guest"
	}
	return id.Role
}

// IdentityFrom returns the caller stored by the auth middleware.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, exists := c.Get(IdentityKey)
	if !exists {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	if !ok || id.UserID == uuid.Nil {
		return Identity{}, false
	}
	return id, true
}
