package domain

import "time"

// Identity is the subject resolved from a verified session token.
// It deliberately carries no role.
type Identity struct {
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Attachment is a blob with its metadata, as held by attachment storage.
type Attachment struct {
	Key         string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}
