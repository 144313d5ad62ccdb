package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vidx/internal/models"
	"github.com/desertthunder/vidx/internal/shared"
)

// admin returns an error unless the signed-in identity is an admin.
func (r *Runner) admin(ctx context.Context) error {
	store, err := r.authenticated(ctx)
	if err != nil {
		return err
	}
	identity := store.CurrentIdentity()
	if identity == nil || !identity.IsAdmin() {
		return fmt.Errorf("%w: admin role required", shared.ErrAuth)
	}
	return nil
}

// UsersList prints one page of users.
func (r *Runner) UsersList(ctx context.Context, cmd *cli.Command) error {
	filter := models.UserFilter{
		Page:   cmd.Int("page"),
		Limit:  cmd.Int("limit"),
		Role:   models.Role(cmd.String("role")),
		Search: cmd.String("search"),
	}
	if filter.Role != "" && !filter.Role.Valid() {
		return fmt.Errorf("%w: role must be viewer, editor or admin", shared.ErrInvalidFlag)
	}
	if err := r.admin(ctx); err != nil {
		return err
	}

	list, err := r.api.ListUsers(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(list, cmd.Bool("pretty"))
	}

	if len(list.Users) == 0 {
		return r.writePlain("No users found\n")
	}
	for i, u := range list.Users {
		status := "active"
		if !u.IsActive {
			status = "inactive"
		}
		r.writePlain("%d. %s <%s> [%s, %s] %s\n", i+1, u.Username, u.Email, u.Role, status, u.ID)
	}
	return r.writePlainln("Page %d of %d", list.Pagination.CurrentPage, max(list.Pagination.TotalPages, 1))
}

// UsersRole changes the role of a user.
func (r *Runner) UsersRole(ctx context.Context, cmd *cli.Command) error {
	id := strings.TrimSpace(cmd.StringArg("id"))
	role := models.Role(strings.ToLower(cmd.StringArg("role")))
	if id == "" {
		return fmt.Errorf("%w: user id", shared.ErrMissingArgument)
	}
	if !role.Valid() {
		return fmt.Errorf("%w: role must be viewer, editor or admin", shared.ErrInvalidArgument)
	}
	if err := r.admin(ctx); err != nil {
		return err
	}

	user, err := r.api.UpdateUserRole(ctx, id, role)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	return r.writePlain("✓ %s is now %s\n", user.Username, user.Role)
}

// UsersToggle activates or deactivates a user.
func (r *Runner) UsersToggle(ctx context.Context, cmd *cli.Command) error {
	id := strings.TrimSpace(cmd.StringArg("id"))
	if id == "" {
		return fmt.Errorf("%w: user id", shared.ErrMissingArgument)
	}
	if err := r.admin(ctx); err != nil {
		return err
	}

	user, err := r.api.ToggleUserStatus(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to toggle user: %w", err)
	}

	status := "deactivated"
	if user.IsActive {
		status = "activated"
	}
	return r.writePlain("✓ %s %s\n", user.Username, status)
}
