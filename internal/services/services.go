// package services defines the dashboard REST client
package services

import (
	"context"
	"io"

	"github.com/desertthunder/vidx/internal/models"
)

// Credentials supplies the bearer token attached to requests and is told when the server rejects it.
//
// Invalidate receives the exact credential the failed request carried, so implementations can
// ignore rejections of a credential that has since been replaced.
type Credentials interface {
	Credential() string
	Invalidate(credential string)
}

// ProgressFunc receives upload transfer percentages in [0,100].
type ProgressFunc func(percent int)

// Service is the set of dashboard operations implemented by [Client].
type Service interface {
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Register(ctx context.Context, input RegisterInput) (*AuthResult, error)
	Me(ctx context.Context) (*models.Identity, error)
	UpdateProfile(ctx context.Context, update ProfileUpdate) (*models.Identity, error)
	ChangePassword(ctx context.Context, current, next string) error

	ListUsers(ctx context.Context, filter models.UserFilter) (*models.UserList, error)
	UpdateUserRole(ctx context.Context, userID string, role models.Role) (*models.Identity, error)
	ToggleUserStatus(ctx context.Context, userID string) (*models.Identity, error)

	ListVideos(ctx context.Context, filter models.VideoFilter) (*models.VideoList, error)
	GetVideo(ctx context.Context, id models.JobID) (*models.Video, error)
	UpdateVideo(ctx context.Context, id models.JobID, update models.VideoUpdate) (*models.Video, error)
	DeleteVideo(ctx context.Context, id models.JobID) error
	UploadVideo(ctx context.Context, file io.Reader, meta models.FileDescriptor, title string, onProgress ProgressFunc) (models.JobID, error)
	Stats(ctx context.Context) (*models.Stats, error)
	Frames(ctx context.Context, id models.JobID) ([]models.Frame, error)
	StreamLocator(id models.JobID) (*Locator, error)
}

// AuthResult is the token and profile returned by login and registration.
type AuthResult struct {
	Token string          `json:"token"`
	User  models.Identity `json:"user"`
}

// RegisterInput creates a new dashboard account.
type RegisterInput struct {
	Username     string      `json:"username"`
	Email        string      `json:"email"`
	Password     string      `json:"password"`
	Organization string      `json:"organization,omitempty"`
	Role         models.Role `json:"role,omitempty"`
}

// ProfileUpdate carries editable profile fields; empty values are left unchanged.
type ProfileUpdate struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

var _ Service = (*Client)(nil)
