package contacts

import (
	"strings"
	"time"
)

// Contact is a workspace-scoped person reachable over WhatsApp.
// The id never changes; display fields may.
type Contact struct {
	ID              string    `json:"id" db:"id"`
	WorkspaceID     string    `json:"workspace_id" db:"workspace_id"`
	Name            string    `json:"name" db:"name"`
	Phone           string    `json:"phone,omitempty" db:"phone"`
	Email           string    `json:"email,omitempty" db:"email"`
	ProfileImageURL string    `json:"profile_image_url,omitempty" db:"profile_image_url"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Identifier returns the phone when present, else the email, else "".
func (c Contact) Identifier() string {
	if p := strings.TrimSpace(c.Phone); p != "" {
		return p
	}
	return strings.TrimSpace(c.Email)
}

// DisplayName falls back from name to phone to email.
func (c Contact) DisplayName() string {
	if n := strings.TrimSpace(c.Name); n != "" {
		return n
	}
	if p := strings.TrimSpace(c.Phone); p != "" {
		return p
	}
	return strings.TrimSpace(c.Email)
}

// NormalizePhone strips formatting and the WhatsApp JID suffix, keeping digits only.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
