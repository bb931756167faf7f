package domain

import (
	"strings"
	"time"
)

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// ValidRole reports whether role is a known user role.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleMember
}

// User is an intranet account. ID is the identity provider subject; the
// remaining fields are business data denormalized onto the record.
type User struct {
	ID        string    `json:"id" bson:"_id"`
	Email     string    `json:"email,omitempty" bson:"email,omitempty"`
	FirstName string    `json:"first_name" bson:"first_name"`
	LastName  string    `json:"last_name" bson:"last_name"`
	ImageURL  string    `json:"image_url,omitempty" bson:"image_url,omitempty"`
	Sector    string    `json:"sector,omitempty" bson:"sector,omitempty"`
	Role      string    `json:"role" bson:"role"`
	Extension string    `json:"extension,omitempty" bson:"extension,omitempty"`
	Active    bool      `json:"active" bson:"active"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// DisplayName joins first and last name, falling back to the email.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Sender is the subset of user fields joined onto chat messages.
type Sender struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	ImageURL  string `json:"image_url,omitempty"`
}

// AsSender projects the user onto its chat display fields.
func (u *User) AsSender() Sender {
	return Sender{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, ImageURL: u.ImageURL}
}
