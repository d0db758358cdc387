// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MaxNameLen  = 512
	MaxEmailLen = 254
)

var (
	ErrExternalIDEmpty = errors.New("external id empty")
	ErrEmailEmpty      = errors.New("email empty")
	ErrNameTooLong     = errors.New("name too long")
)

type UserID int64

// User is a tenant-scoped identity mirrored from an external identity provider.
type User struct {
	ID         UserID    `json:"id"`
	UUID       uuid.UUID `json:"uuid"`
	Tenant     Tenant    `json:"tenant"`
	ExternalID string    `json:"user_id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Email      string    `json:"email"`
	IsExpert   bool      `json:"is_expert"`
	CreatedAt  time.Time `json:"created_at"`
}

// Anonymous is the identity attached to a handshake that failed to authenticate.
var Anonymous = User{}

func (u User) IsAnonymous() bool { return u.ID == 0 }

func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// UserProfile carries the fields an identity provider asserts about a user.
type UserProfile struct {
	ExternalID string
	FirstName  string
	LastName   string
	Email      string
}

// NewUserProfile trims the asserted fields and enforces the stored column limits.
func NewUserProfile(externalID, firstName, lastName, email string) (UserProfile, error) {
	p := UserProfile{
		ExternalID: strings.TrimSpace(externalID),
		FirstName:  strings.TrimSpace(firstName),
		LastName:   strings.TrimSpace(lastName),
		Email:      strings.ToLower(strings.TrimSpace(email)),
	}
	if p.ExternalID == "" {
		return UserProfile{}, ErrExternalIDEmpty
	}
	if p.Email == "" {
		return UserProfile{}, ErrEmailEmpty
	}
	if len(p.ExternalID) > MaxNameLen || len(p.FirstName) > MaxNameLen ||
		len(p.LastName) > MaxNameLen || len(p.Email) > MaxEmailLen {
		return UserProfile{}, ErrNameTooLong
	}
	return p, nil
}
