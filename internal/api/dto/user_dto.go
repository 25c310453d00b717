package dto

import (
	"strings"
	"time"

	"github.com/spec-kit/account-service/internal/domain"
)

const dateLayout = "2006-01-02"

// RegisterRequest payload for new accounts. Accepted as JSON or as the text
// fields of a multipart form.
type RegisterRequest struct {
	Name       string `json:"name" form:"name"`
	Password   string `json:"password" form:"password"`
	Mobile     string `json:"mobile" form:"mobile"`
	Email      string `json:"email" form:"email"`
	DOB        string `json:"dob" form:"dob"`
	Gender     string `json:"gender" form:"gender"`
	City       string `json:"city" form:"city"`
	AgreeTerms bool   `json:"agreeTerms" form:"agreeTerms"`
}

// LoginRequest payload for login. Username is accepted as an alias of Name.
type LoginRequest struct {
	Name     string `json:"name" form:"name"`
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// Identity returns the account name the caller supplied.
func (r LoginRequest) Identity() string {
	if strings.TrimSpace(r.Name) != "" {
		return r.Name
	}
	return r.Username
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UpdateUserRequest payload for PUT /user/:id. Absent fields are left unchanged.
type UpdateUserRequest struct {
	Name       *string `json:"name" form:"name"`
	Password   *string `json:"password" form:"password"`
	Role       *string `json:"role" form:"role"`
	Mobile     *string `json:"mobile" form:"mobile"`
	Email      *string `json:"email" form:"email"`
	DOB        *string `json:"dob" form:"dob"`
	Gender     *string `json:"gender" form:"gender"`
	City       *string `json:"city" form:"city"`
	AgreeTerms *bool   `json:"agreeTerms" form:"agreeTerms"`
}

// DeleteUsersRequest payload for POST /delete.
type DeleteUsersRequest struct {
	IDs []string `json:"ids"`
}

// AttachmentResponse describes a stored attachment without its bytes.
type AttachmentResponse struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// UserResponse is the public view of an account. It never carries the
// password hash.
type UserResponse struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Role         domain.Role         `json:"role"`
	Mobile       string              `json:"mobile,omitempty"`
	Email        string              `json:"email,omitempty"`
	DOB          string              `json:"dob,omitempty"`
	Gender       string              `json:"gender,omitempty"`
	City         string              `json:"city,omitempty"`
	AgreeTerms   bool                `json:"agreeTerms"`
	ProfileImage *AttachmentResponse `json:"profileImage,omitempty"`
	Document     *AttachmentResponse `json:"document,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// NewUserResponse maps a domain account to its public view.
func NewUserResponse(user *domain.User) UserResponse {
	resp := UserResponse{
		ID:         user.ID,
		Name:       user.Name,
		Role:       user.Role,
		Mobile:     user.Mobile,
		Email:      user.Email,
		Gender:     user.Gender,
		City:       user.City,
		AgreeTerms: user.AgreeTerms,
		CreatedAt:  user.CreatedAt,
		UpdatedAt:  user.UpdatedAt,
	}
	if user.DOB != nil {
		resp.DOB = user.DOB.Format(dateLayout)
	}
	resp.ProfileImage = attachmentResponse(user.ID, "profile-image", user.ProfileImage)
	resp.Document = attachmentResponse(user.ID, "document", user.Document)
	return resp
}

func attachmentResponse(userID, slot string, ref *domain.AttachmentRef) *AttachmentResponse {
	if ref == nil {
		return nil
	}
	return &AttachmentResponse{
		URL:         "/user/" + userID + "/" + slot,
		ContentType: ref.ContentType,
		Size:        ref.Size,
	}
}

// AdminDashboardResponse summarizes the account store.
type AdminDashboardResponse struct {
	TotalAccounts int64                 `json:"total_accounts"`
	ByRole        map[domain.Role]int64 `json:"by_role"`
}

// ParseDate accepts a calendar date or an RFC 3339 timestamp. An empty value
// yields nil.
func ParseDate(value string) (*time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, true
	}
	for _, layout := range []string{dateLayout, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, true
		}
	}
	return nil, false
}
