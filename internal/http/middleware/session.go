package middleware

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionCfg holds configuration for session middleware.
type SessionCfg struct {
	DB  *gorm.DB
	TTL time.Duration
}

// Session is a database-backed session model. TokenHash stores the SHA-256
// of the bearer token; the token itself is only ever held by the client.
type Session struct {
	ID         string    `gorm:"primaryKey;size:36"`
	UserID     string    `gorm:"size:36;not null;index:ix_sessions_user_id"`
	TokenHash  []byte    `gorm:"size:32;not null;uniqueIndex:ux_sessions_token_hash"`
	ExpiresAt  time.Time `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
	LastSeenAt time.Time `gorm:"not null"`
}

func (Session) TableName() string { return "sessions" }

// SessionMiddleware resolves the Authorization bearer token to a session and
// sets user identity in the request context. Requests without a valid token
// pass through unauthenticated; RequireAuth decides what that means.
func SessionMiddleware(cfg SessionCfg) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Next()
			return
		}

		hash := sha256.Sum256([]byte(token))
		var sess Session
		if err := cfg.DB.
			Where("token_hash = ? AND expires_at > ?", hash[:], time.Now()).
			First(&sess).Error; err != nil {
			c.Next()
			return
		}

		c.Set("session_id", sess.ID)
		c.Set("user_id", sess.UserID)

		var email, role string
		row := cfg.DB.Table("users").
			Select("email", "role").
			Where("id = ?", sess.UserID).Row()
		if err := row.Scan(&email, &role); err == nil {
			c.Set("user_email", email)
			c.Set("user_role", role)
		}

		go touchSession(cfg.DB, sess.ID)

		c.Next()
	}
}

func touchSession(db *gorm.DB, sessionID string) {
	_ = db.Model(&Session{}).
		Where("id = ?", sessionID).
		Update("last_seen_at", time.Now()).Error
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// CreateSession mints a session and returns it with the plaintext token.
func CreateSession(cfg SessionCfg, userID string) (*Session, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}
	token := hex.EncodeToString(raw)
	hash := sha256.Sum256([]byte(token))

	now := time.Now()
	sess := &Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		TokenHash:  hash[:],
		ExpiresAt:  now.Add(cfg.TTL),
		CreatedAt:  now,
		UpdatedAt:  now,
		LastSeenAt: now,
	}
	if err := cfg.DB.Create(sess).Error; err != nil {
		return nil, "", err
	}
	return sess, token, nil
}

// DeleteSession removes a session by ID.
func DeleteSession(cfg SessionCfg, sessionID string) error {
	return cfg.DB.Delete(&Session{}, "id = ?", sessionID).Error
}

// ContextUser represents the authenticated user stored in request context.
type ContextUser struct {
	ID    string
	Email string
	Role  string
}

// CurrentUser retrieves the authenticated user from the gin context.
func CurrentUser(c *gin.Context) (ContextUser, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		return ContextUser{}, false
	}
	userID, ok := userIDVal.(string)
	if !ok || userID == "" {
		return ContextUser{}, false
	}

	u := ContextUser{ID: userID}
	if v, ok := c.Get("user_email"); ok {
		u.Email, _ = v.(string)
	}
	if v, ok := c.Get("user_role"); ok {
		u.Role, _ = v.(string)
	}
	return u, true
}
