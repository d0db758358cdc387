package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type TenantID int64

// Tenant scopes user uniqueness. Two tenants may hold users with the same email.
type Tenant struct {
	ID         TenantID  `json:"id"`
	UUID       uuid.UUID `json:"uuid"`
	ExternalID string    `json:"tenant_id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"-"`
}

// TenantRef is the external view of a tenant as asserted by an identity provider.
type TenantRef struct {
	ExternalID string
	Name       string
}

func NewTenantRef(externalID, name string) (TenantRef, error) {
	ref := TenantRef{
		ExternalID: strings.TrimSpace(externalID),
		Name:       strings.TrimSpace(name),
	}
	if ref.ExternalID == "" {
		return TenantRef{}, ErrExternalIDEmpty
	}
	if len(ref.ExternalID) > MaxNameLen || len(ref.Name) > MaxNameLen {
		return TenantRef{}, ErrNameTooLong
	}
	return ref, nil
}
