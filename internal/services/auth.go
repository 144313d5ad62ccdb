package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/vidx/internal/models"
)

const minPasswordLength = 6

type userPayload struct {
	User models.Identity `json:"user"`
}

// Login exchanges an email and password for a token. The request is sent without a credential.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, newValidationError("Please enter your email and password")
	}

	var result AuthResult
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/login", body: body, anonymous: true}, &result); err != nil {
		return nil, err
	}
	if result.Token == "" {
		return nil, fmt.Errorf("login response did not include a token")
	}
	return &result, nil
}

// Register creates an account and returns its token. The request is sent without a credential.
func (c *Client) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	switch {
	case strings.TrimSpace(input.Username) == "":
		return nil, newValidationError("Username is required")
	case strings.TrimSpace(input.Email) == "":
		return nil, newValidationError("Email is required")
	case len(input.Password) < minPasswordLength:
		return nil, newValidationError(fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	case input.Role != "" && !input.Role.Valid():
		return nil, newValidationError(fmt.Sprintf("Unknown role %q", input.Role))
	}

	var result AuthResult
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/register", body: input, anonymous: true}, &result); err != nil {
		return nil, err
	}
	if result.Token == "" {
		return nil, fmt.Errorf("registration response did not include a token")
	}
	return &result, nil
}

// Me resolves the bound credential to its identity.
func (c *Client) Me(ctx context.Context) (*models.Identity, error) {
	var p userPayload
	if err := c.get(ctx, "/auth/me", nil, &p); err != nil {
		return nil, err
	}
	return &p.User, nil
}

// UpdateProfile changes the caller's username or email.
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (*models.Identity, error) {
	if update.Username == "" && update.Email == "" {
		return nil, newValidationError("Nothing to update")
	}

	var p userPayload
	if err := c.put(ctx, "/auth/profile", update, &p); err != nil {
		return nil, err
	}
	return &p.User, nil
}

// ChangePassword replaces the caller's password.
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	if current == "" {
		return newValidationError("Current password is required")
	}
	if len(next) < minPasswordLength {
		return newValidationError(fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}

	body := map[string]string{"currentPassword": current, "newPassword": next}
	return c.put(ctx, "/auth/change-password", body, nil)
}

// ListUsers lists users of the caller's organization. Admin only.
func (c *Client) ListUsers(ctx context.Context, filter models.UserFilter) (*models.UserList, error) {
	var list models.UserList
	if err := c.get(ctx, "/auth/users", filter.Query(), &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// UpdateUserRole sets a user's role. Admin only.
func (c *Client) UpdateUserRole(ctx context.Context, userID string, role models.Role) (*models.Identity, error) {
	if userID == "" {
		return nil, newValidationError("User id is required")
	}
	if !role.Valid() {
		return nil, newValidationError(fmt.Sprintf("Unknown role %q", role))
	}

	var p userPayload
	path := "/auth/users/" + url.PathEscape(userID) + "/role"
	if err := c.put(ctx, path, map[string]models.Role{"role": role}, &p); err != nil {
		return nil, err
	}
	return &p.User, nil
}

// ToggleUserStatus activates or deactivates a user. Admin only.
func (c *Client) ToggleUserStatus(ctx context.Context, userID string) (*models.Identity, error) {
	if userID == "" {
		return nil, newValidationError("User id is required")
	}

	var p userPayload
	path := "/auth/users/" + url.PathEscape(userID) + "/toggle-status"
	if err := c.put(ctx, path, struct{}{}, &p); err != nil {
		return nil, err
	}
	return &p.User, nil
}
