package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role is the dashboard permission level of a user.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleViewer, RoleEditor, RoleAdmin:
		return true
	}
	return false
}

// Identity is the profile a credential resolves to.
type Identity struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	Organization string    `json:"organization,omitempty"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt,omitzero"`
}

// UnmarshalJSON accepts either "id" or "_id" as the identifier.
func (i *Identity) UnmarshalJSON(data []byte) error {
	type alias Identity
	aux := struct {
		*alias
		MongoID  string `json:"_id"`
		IsActive *bool  `json:"isActive"`
	}{alias: (*alias)(i)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if i.ID == "" {
		i.ID = aux.MongoID
	}
	// Accounts are active unless the server says otherwise.
	i.IsActive = aux.IsActive == nil || *aux.IsActive
	return nil
}

// IsAdmin reports whether the identity may manage users.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// IsEditor reports whether the identity may upload, edit and delete videos.
func (i Identity) IsEditor() bool {
	return i.Role == RoleEditor || i.Role == RoleAdmin
}

// DisplayName is the username, falling back to the email address.
func (i Identity) DisplayName() string {
	if i.Username != "" {
		return i.Username
	}
	return i.Email
}

// Credential is the stored bearer token together with the identity that last resolved from it.
type Credential struct {
	Profile  string
	Token    string
	Identity *Identity
	created  time.Time
	updated  time.Time
}

// NewCredential creates a credential for profile with fresh timestamps.
func NewCredential(profile, token string, identity *Identity) *Credential {
	now := time.Now().UTC()
	return &Credential{Profile: profile, Token: token, Identity: identity, created: now, updated: now}
}

func (c *Credential) ID() string           { return c.Profile }
func (c *Credential) CreatedAt() time.Time { return c.created }
func (c *Credential) UpdatedAt() time.Time { return c.updated }

// SetTimestamps is used by the repository when scanning rows.
func (c *Credential) SetTimestamps(created, updated time.Time) {
	c.created, c.updated = created, updated
}

// Touch marks the credential as modified now.
func (c *Credential) Touch() {
	c.updated = time.Now().UTC()
}

func (c *Credential) Validate() error {
	if c.Profile == "" {
		return fmt.Errorf("credential profile is required")
	}
	if c.Token == "" {
		return fmt.Errorf("credential token is required")
	}
	return nil
}
