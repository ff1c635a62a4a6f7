package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents which side of the marketplace a user acts on.
type Role string

const (
	RoleSponsor   Role = "SPONSOR"
	RolePublisher Role = "PUBLISHER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleSponsor || r == RolePublisher
}

// User represents a marketplace account.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UserPublic is User without sensitive fields for API responses.
type UserPublic struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// Principal is the authenticated caller attached to a request.
// SponsorID and PublisherID are set when the user owns such a profile.
type Principal struct {
	UserID      uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	Role        Role       `json:"role"`
	SponsorID   *uuid.UUID `json:"sponsorId,omitempty"`
	PublisherID *uuid.UUID `json:"publisherId,omitempty"`
}

// OwnsSponsor reports whether the principal is linked to sponsor id.
func (p *Principal) OwnsSponsor(id uuid.UUID) bool {
	return p != nil && p.SponsorID != nil && *p.SponsorID == id
}

// OwnsPublisher reports whether the principal is linked to publisher id.
func (p *Principal) OwnsPublisher(id uuid.UUID) bool {
	return p != nil && p.PublisherID != nil && *p.PublisherID == id
}
