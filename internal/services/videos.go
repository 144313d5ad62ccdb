package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/desertthunder/vidx/internal/models"
	"github.com/desertthunder/vidx/internal/shared"
)

type videoPayload struct {
	Video models.Video `json:"video"`
}

func videoPath(id models.JobID) string {
	return "/videos/" + url.PathEscape(id.String())
}

func requireID(id models.JobID) error {
	if !id.Assigned() {
		return newValidationError("Video id is required")
	}
	return nil
}

// ListVideos returns one page of the caller's videos.
func (c *Client) ListVideos(ctx context.Context, filter models.VideoFilter) (*models.VideoList, error) {
	var list models.VideoList
	if err := c.get(ctx, "/videos", filter.Query(), &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetVideo fetches the authoritative record of a video.
func (c *Client) GetVideo(ctx context.Context, id models.JobID) (*models.Video, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}

	var p videoPayload
	if err := c.get(ctx, videoPath(id), nil, &p); err != nil {
		return nil, err
	}
	return &p.Video, nil
}

// UpdateVideo edits a video's title or description.
func (c *Client) UpdateVideo(ctx context.Context, id models.JobID, update models.VideoUpdate) (*models.Video, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	if update.Title != nil && *update.Title == "" {
		return nil, newValidationError("Title must not be empty")
	}

	var p videoPayload
	if err := c.put(ctx, videoPath(id), update, &p); err != nil {
		return nil, err
	}
	return &p.Video, nil
}

// DeleteVideo removes a video and its stored media.
func (c *Client) DeleteVideo(ctx context.Context, id models.JobID) error {
	if err := requireID(id); err != nil {
		return err
	}
	return c.do(ctx, request{method: http.MethodDelete, path: videoPath(id)}, nil)
}

// Stats returns aggregate counts for the caller's videos.
func (c *Client) Stats(ctx context.Context) (*models.Stats, error) {
	var p struct {
		Stats models.Stats `json:"stats"`
	}
	if err := c.get(ctx, "/videos/stats", nil, &p); err != nil {
		return nil, err
	}
	return &p.Stats, nil
}

// Frames returns the frames extracted from a processed video.
func (c *Client) Frames(ctx context.Context, id models.JobID) ([]models.Frame, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}

	var p struct {
		Frames []models.Frame `json:"frames"`
	}
	if err := c.get(ctx, videoPath(id)+"/frames", nil, &p); err != nil {
		return nil, err
	}
	return p.Frames, nil
}

// Locator is a playable stream URL. The credential travels in the query string because
// media players cannot attach headers.
type Locator struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

// Expired reports whether the embedded credential has passed its expiry.
func (l Locator) Expired(now time.Time) bool {
	return !l.ExpiresAt.IsZero() && !now.Before(l.ExpiresAt)
}

// StreamLocator builds the stream URL for a video using the bound credential.
func (c *Client) StreamLocator(id models.JobID) (*Locator, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}

	credential := c.currentCredential()
	if credential == "" {
		return nil, fmt.Errorf("%w: stream requires a credential", shared.ErrNotAuthenticated)
	}

	loc := &Locator{URL: c.endpoint(videoPath(id)+"/stream", map[string]string{"token": credential})}
	if exp, ok := TokenExpiry(credential); ok {
		loc.ExpiresAt = exp
	}
	return loc, nil
}
