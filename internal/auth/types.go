package auth

import (
	"strings"
	"time"
)

// Role identifiers. A higher value grants everything a lower one does.
const (
	RoleNone   = 1
	RoleMember = 2
	RoleAdmin  = 3
)

// Identity is the request-scoped projection of a verified token.
type Identity struct {
	UserID string `json:"userId"`
	RoleID int    `json:"roleId"`
	Email  string `json:"email"`
}

// Profile is the public view of an account. It never carries the credential.
type Profile struct {
	ID              string     `json:"id"`
	LastName        string     `json:"lastName"`
	FirstName       string     `json:"firstName"`
	Email           string     `json:"email"`
	Username        string     `json:"username,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	BirthDate       *time.Time `json:"birthDate,omitempty"`
	InscriptionDate time.Time  `json:"inscriptionDate"`
	Description     string     `json:"description,omitempty"`
	RoleID          int        `json:"roleId"`
	HouseID         *int64     `json:"houseId,omitempty"`
}

// Identity returns the token claims describing the profile owner.
func (p Profile) Identity() Identity {
	return Identity{UserID: p.ID, RoleID: p.RoleID, Email: strings.TrimSpace(p.Email)}
}

// trimmed strips surrounding whitespace from every string field. Older rows
// were written with padded columns.
func (p Profile) trimmed() Profile {
	p.ID = strings.TrimSpace(p.ID)
	p.LastName = strings.TrimSpace(p.LastName)
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.Email = strings.TrimSpace(p.Email)
	p.Username = strings.TrimSpace(p.Username)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Description = strings.TrimSpace(p.Description)
	return p
}

// Account is a stored user record: the profile plus its credential.
type Account struct {
	Profile
	PasswordHash string `json:"-"`
}

// Registration carries the fields accepted when creating an account.
// RoleID zero means "use the default role".
type Registration struct {
	LastName    string
	FirstName   string
	Email       string
	Password    string
	RoleID      int
	Username    string
	Phone       string
	BirthDate   *time.Time
	Description string
}

// ProfileUpdate lists the mutable profile fields; nil leaves a field unchanged.
type ProfileUpdate struct {
	LastName    *string
	FirstName   *string
	Email       *string
	Username    *string
	Phone       *string
	BirthDate   *time.Time
	Description *string
	HouseID     *int64
}

// Token is a signed identity assertion and the moment it stops being valid.
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Session is returned by Login and Register.
type Session struct {
	Profile Profile
	Token   Token
}
