package domain

import "time"

// Role is the coarse permission tag stored on an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// AttachmentKind names the binary slots an account carries.
type AttachmentKind string

const (
	AttachmentProfileImage AttachmentKind = "profileImage"
	AttachmentDocument     AttachmentKind = "document"
)

// AttachmentRef points at a stored blob.
type AttachmentRef struct {
	Key         string
	ContentType string
	Size        int64
}

// User is the account record. Name is unique.
type User struct {
	ID           string
	Name         string
	PasswordHash string
	Role         Role
	Mobile       string
	Email        string
	DOB          *time.Time
	Gender       string
	City         string
	AgreeTerms   bool
	ProfileImage *AttachmentRef
	Document     *AttachmentRef
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Attachments returns the non-empty attachment references.
func (u *User) Attachments() []AttachmentRef {
	refs := make([]AttachmentRef, 0, 2)
	if u.ProfileImage != nil {
		refs = append(refs, *u.ProfileImage)
	}
	if u.Document != nil {
		refs = append(refs, *u.Document)
	}
	return refs
}

// Attachment returns the reference stored in the given slot.
func (u *User) Attachment(kind AttachmentKind) *AttachmentRef {
	switch kind {
	case AttachmentProfileImage:
		return u.ProfileImage
	case AttachmentDocument:
		return u.Document
	default:
		return nil
	}
}

// SetAttachment replaces the reference stored in the given slot.
func (u *User) SetAttachment(kind AttachmentKind, ref *AttachmentRef) {
	switch kind {
	case AttachmentProfileImage:
		u.ProfileImage = ref
	case AttachmentDocument:
		u.Document = ref
	}
}
