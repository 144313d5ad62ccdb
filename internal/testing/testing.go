// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/vidx/internal/models"
	"github.com/desertthunder/vidx/internal/services"
	"github.com/desertthunder/vidx/internal/shared"
)

// MockService is a test double for [services.Service].
//
// Each method delegates to the matching func field when set and otherwise returns a zero
// result. Calls are recorded by method name.
type MockService struct {
	LoginFunc            func(ctx context.Context, email, password string) (*services.AuthResult, error)
	RegisterFunc         func(ctx context.Context, input services.RegisterInput) (*services.AuthResult, error)
	MeFunc               func(ctx context.Context) (*models.Identity, error)
	UpdateProfileFunc    func(ctx context.Context, update services.ProfileUpdate) (*models.Identity, error)
	ChangePasswordFunc   func(ctx context.Context, current, next string) error
	ListUsersFunc        func(ctx context.Context, filter models.UserFilter) (*models.UserList, error)
	UpdateUserRoleFunc   func(ctx context.Context, userID string, role models.Role) (*models.Identity, error)
	ToggleUserStatusFunc func(ctx context.Context, userID string) (*models.Identity, error)
	ListVideosFunc       func(ctx context.Context, filter models.VideoFilter) (*models.VideoList, error)
	GetVideoFunc         func(ctx context.Context, id models.JobID) (*models.Video, error)
	UpdateVideoFunc      func(ctx context.Context, id models.JobID, update models.VideoUpdate) (*models.Video, error)
	DeleteVideoFunc      func(ctx context.Context, id models.JobID) error
	UploadVideoFunc      func(ctx context.Context, file io.Reader, meta models.FileDescriptor, title string, onProgress services.ProgressFunc) (models.JobID, error)
	StatsFunc            func(ctx context.Context) (*models.Stats, error)
	FramesFunc           func(ctx context.Context, id models.JobID) ([]models.Frame, error)
	StreamLocatorFunc    func(id models.JobID) (*services.Locator, error)

	mu    sync.Mutex
	calls []string
}

func (m *MockService) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
}

// Calls returns the recorded method names in call order.
func (m *MockService) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallCount returns how many times the named method was called.
func (m *MockService) CallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (m *MockService) Login(ctx context.Context, email, password string) (*services.AuthResult, error) {
	m.record("Login")
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password)
	}
	return &services.AuthResult{}, nil
}

func (m *MockService) Register(ctx context.Context, input services.RegisterInput) (*services.AuthResult, error) {
	m.record("Register")
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, input)
	}
	return &services.AuthResult{}, nil
}

func (m *MockService) Me(ctx context.Context) (*models.Identity, error) {
	m.record("Me")
	if m.MeFunc != nil {
		return m.MeFunc(ctx)
	}
	return &models.Identity{}, nil
}

func (m *MockService) UpdateProfile(ctx context.Context, update services.ProfileUpdate) (*models.Identity, error) {
	m.record("UpdateProfile")
	if m.UpdateProfileFunc != nil {
		return m.UpdateProfileFunc(ctx, update)
	}
	return &models.Identity{}, nil
}

func (m *MockService) ChangePassword(ctx context.Context, current, next string) error {
	m.record("ChangePassword")
	if m.ChangePasswordFunc != nil {
		return m.ChangePasswordFunc(ctx, current, next)
	}
	return nil
}

func (m *MockService) ListUsers(ctx context.Context, filter models.UserFilter) (*models.UserList, error) {
	m.record("ListUsers")
	if m.ListUsersFunc != nil {
		return m.ListUsersFunc(ctx, filter)
	}
	return &models.UserList{}, nil
}

func (m *MockService) UpdateUserRole(ctx context.Context, userID string, role models.Role) (*models.Identity, error) {
	m.record("UpdateUserRole")
	if m.UpdateUserRoleFunc != nil {
		return m.UpdateUserRoleFunc(ctx, userID, role)
	}
	return &models.Identity{ID: userID, Role: role}, nil
}

func (m *MockService) ToggleUserStatus(ctx context.Context, userID string) (*models.Identity, error) {
	m.record("ToggleUserStatus")
	if m.ToggleUserStatusFunc != nil {
		return m.ToggleUserStatusFunc(ctx, userID)
	}
	return &models.Identity{ID: userID}, nil
}

func (m *MockService) ListVideos(ctx context.Context, filter models.VideoFilter) (*models.VideoList, error) {
	m.record("ListVideos")
	if m.ListVideosFunc != nil {
		return m.ListVideosFunc(ctx, filter)
	}
	return &models.VideoList{}, nil
}

func (m *MockService) GetVideo(ctx context.Context, id models.JobID) (*models.Video, error) {
	m.record("GetVideo")
	if m.GetVideoFunc != nil {
		return m.GetVideoFunc(ctx, id)
	}
	return &models.Video{ID: id}, nil
}

func (m *MockService) UpdateVideo(ctx context.Context, id models.JobID, update models.VideoUpdate) (*models.Video, error) {
	m.record("UpdateVideo")
	if m.UpdateVideoFunc != nil {
		return m.UpdateVideoFunc(ctx, id, update)
	}
	return &models.Video{ID: id}, nil
}

func (m *MockService) DeleteVideo(ctx context.Context, id models.JobID) error {
	m.record("DeleteVideo")
	if m.DeleteVideoFunc != nil {
		return m.DeleteVideoFunc(ctx, id)
	}
	return nil
}

func (m *MockService) UploadVideo(ctx context.Context, file io.Reader, meta models.FileDescriptor, title string, onProgress services.ProgressFunc) (models.JobID, error) {
	m.record("UploadVideo")
	if m.UploadVideoFunc != nil {
		return m.UploadVideoFunc(ctx, file, meta, title, onProgress)
	}
	return "", nil
}

func (m *MockService) Stats(ctx context.Context) (*models.Stats, error) {
	m.record("Stats")
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx)
	}
	return &models.Stats{}, nil
}

func (m *MockService) Frames(ctx context.Context, id models.JobID) ([]models.Frame, error) {
	m.record("Frames")
	if m.FramesFunc != nil {
		return m.FramesFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockService) StreamLocator(id models.JobID) (*services.Locator, error) {
	m.record("StreamLocator")
	if m.StreamLocatorFunc != nil {
		return m.StreamLocatorFunc(id)
	}
	return &services.Locator{URL: "http://localhost/api/videos/" + id.String() + "/stream"}, nil
}

var _ services.Service = (*MockService)(nil)

// MemoryCredentials is an in-memory credential store keyed by profile.
type MemoryCredentials struct {
	mu      sync.Mutex
	items   map[string]models.Credential
	SaveErr error
	Deletes int
}

func NewMemoryCredentials() *MemoryCredentials {
	return &MemoryCredentials{items: make(map[string]models.Credential)}
}

func (m *MemoryCredentials) Load(profile string) (*models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[profile]
	if !ok {
		return nil, fmt.Errorf("%w: profile %s", shared.ErrNoCredential, profile)
	}
	return &c, nil
}

func (m *MemoryCredentials) Save(c *models.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.items[c.Profile] = *c
	return nil
}

func (m *MemoryCredentials) Delete(profile string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deletes++
	delete(m.items, profile)
	return nil
}

// Token returns the stored token for profile, or "".
func (m *MemoryCredentials) Token(profile string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[profile].Token
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if err == nil && !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}
