package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vidx/internal/models"
	"github.com/desertthunder/vidx/internal/services"
	"github.com/desertthunder/vidx/internal/shared"
)

// minPasswordLength matches the dashboard's registration rule.
const minPasswordLength = 6

// AuthLogin signs in with email & password and persists the credential.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	store, err := r.Session(ctx)
	if err != nil {
		return err
	}

	email := cmd.String("email")
	if email == "" {
		if email, err = r.prompt("Email"); err != nil {
			return err
		}
	}
	password, err := r.promptSecret("Password")
	if err != nil {
		return err
	}
	if email == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", shared.ErrMissingArgument)
	}

	r.logger.Info("signing in", "email", email)

	identity, err := store.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	return r.writePlain("✓ Signed in as %s (%s)\n", identity.Username, identity.Role)
}

// AuthRegister creates an account and signs in.
func (r *Runner) AuthRegister(ctx context.Context, cmd *cli.Command) error {
	role := models.Role(cmd.String("role"))
	if role != "" && !role.Valid() {
		return fmt.Errorf("%w: role must be viewer, editor or admin", shared.ErrInvalidFlag)
	}

	store, err := r.Session(ctx)
	if err != nil {
		return err
	}

	password, err := r.promptSecret("Password")
	if err != nil {
		return err
	}
	confirm, err := r.promptSecret("Confirm password")
	if err != nil {
		return err
	}
	if err := checkNewPassword(password, confirm); err != nil {
		return err
	}

	identity, err := store.Register(ctx, services.RegisterInput{
		Username:     cmd.String("username"),
		Email:        cmd.String("email"),
		Password:     password,
		Organization: cmd.String("organization"),
		Role:         role,
	})
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	return r.writePlain("✓ Registered and signed in as %s (%s)\n", identity.Username, identity.Role)
}

// AuthLogout forgets the stored credential.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	store, err := r.Session(ctx)
	if err != nil {
		return err
	}
	if !store.Snapshot().Authenticated() {
		return r.writePlain("Not signed in\n")
	}

	store.Logout()
	return r.writePlain("✓ Signed out\n")
}

// AuthWhoami re-validates the credential and prints the profile. When the server is
// unreachable it falls back to the cached profile and marks it unverified.
func (r *Runner) AuthWhoami(ctx context.Context, cmd *cli.Command) error {
	store, err := r.authenticated(ctx)
	if err != nil {
		return err
	}

	identity, err := store.Refresh(ctx)
	if err != nil {
		snap := store.Snapshot()
		offline := errors.Is(err, shared.ErrTransport) || errors.Is(err, shared.ErrServer)
		if !offline || !snap.Unverified || snap.Identity == nil {
			return fmt.Errorf("failed to load profile: %w", err)
		}
		r.logger.Warn("showing cached profile", "error", err)
		identity = snap.Identity
	}
	verified := err == nil

	if cmd.Bool("json") {
		return r.writeJSON(whoami{Identity: identity, Verified: verified}, cmd.Bool("pretty"))
	}
	if err := r.printIdentity(identity); err != nil {
		return err
	}
	if !verified {
		return r.writePlain("Verified: no (server unreachable, showing cached profile)\n")
	}
	return nil
}

// whoami is the JSON shape of `auth whoami`.
type whoami struct {
	*models.Identity
	Verified bool `json:"verified"`
}

// AuthProfile updates the username and/or email of the signed-in account.
func (r *Runner) AuthProfile(ctx context.Context, cmd *cli.Command) error {
	update := services.ProfileUpdate{Username: cmd.String("username"), Email: cmd.String("email")}
	if update.Username == "" && update.Email == "" {
		return fmt.Errorf("%w: --username or --email", shared.ErrMissingArgument)
	}

	store, err := r.authenticated(ctx)
	if err != nil {
		return err
	}

	identity, err := store.UpdateProfile(ctx, update)
	if err != nil {
		return fmt.Errorf("profile update failed: %w", err)
	}

	r.writePlain("✓ Profile updated\n")
	return r.printIdentity(identity)
}

// AuthPassword changes the account password.
func (r *Runner) AuthPassword(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.authenticated(ctx); err != nil {
		return err
	}

	current, err := r.promptSecret("Current password")
	if err != nil {
		return err
	}
	next, err := r.promptSecret("New password")
	if err != nil {
		return err
	}
	confirm, err := r.promptSecret("Confirm new password")
	if err != nil {
		return err
	}
	if err := checkNewPassword(next, confirm); err != nil {
		return err
	}

	if err := r.api.ChangePassword(ctx, current, next); err != nil {
		return fmt.Errorf("password change failed: %w", err)
	}
	return r.writePlain("✓ Password changed\n")
}

func checkNewPassword(password, confirm string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", shared.ErrInvalidInput, minPasswordLength)
	}
	if password != confirm {
		return fmt.Errorf("%w: passwords do not match", shared.ErrInvalidInput)
	}
	return nil
}

func (r *Runner) printIdentity(identity *models.Identity) error {
	status := "active"
	if !identity.IsActive {
		status = "inactive"
	}
	r.writePlain("Username: %s\n", identity.Username)
	r.writePlain("Email:    %s\n", identity.Email)
	r.writePlain("Role:     %s\n", identity.Role)
	if identity.Organization != "" {
		r.writePlain("Org:      %s\n", identity.Organization)
	}
	return r.writePlain("Status:   %s\n", status)
}
