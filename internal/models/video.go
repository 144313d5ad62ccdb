package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// JobID identifies a server-side processing job. The empty value means unassigned.
//
// REST responses carry it as video.id (or _id) and realtime payloads as videoId;
// servers disagree on whether it is a string or a number, so both decode.
type JobID string

func (id JobID) String() string { return string(id) }

// Assigned reports whether the server has issued the id.
func (id JobID) Assigned() bool { return id != "" }

func (id *JobID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = JobID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("job id must be a string or number: %w", err)
	}
	*id = JobID(n.String())
	return nil
}

// VideoStatus is the server-side processing status of a video.
type VideoStatus string

const (
	StatusPending    VideoStatus = "pending"
	StatusProcessing VideoStatus = "processing"
	StatusCompleted  VideoStatus = "completed"
	StatusFailed     VideoStatus = "failed"
)

func (s VideoStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SensitivityFlag is the classifier verdict for a processed video.
type SensitivityFlag string

const (
	FlagSafe    SensitivityFlag = "safe"
	FlagFlagged SensitivityFlag = "flagged"
	FlagUnknown SensitivityFlag = "unknown"
)

// Metadata holds technical details extracted during transcoding.
type Metadata struct {
	Resolution string  `json:"resolution,omitempty"`
	Codec      string  `json:"codec,omitempty"`
	Format     string  `json:"format,omitempty"`
	Bitrate    float64 `json:"bitrate,omitempty"`
	FPS        float64 `json:"fps,omitempty"`
}

// Owner is the uploader of a video. The server sends either a populated user object or a bare id.
type Owner struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

func (o *Owner) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &o.ID)
	}

	var aux struct {
		ID       string `json:"id"`
		MongoID  string `json:"_id"`
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	o.ID, o.Username, o.Email = aux.ID, aux.Username, aux.Email
	if o.ID == "" {
		o.ID = aux.MongoID
	}
	return nil
}

// Video is the server record of an uploaded video.
type Video struct {
	ID              JobID           `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	Filename        string          `json:"originalName,omitempty"`
	Status          VideoStatus     `json:"status"`
	ProcessProgress int             `json:"processProgress"`
	SensitivityFlag SensitivityFlag `json:"sensitivityFlag,omitempty"`
	Duration        float64         `json:"duration,omitempty"`
	Size            int64           `json:"size,omitempty"`
	Metadata        Metadata        `json:"metadata"`
	ErrorMessage    string          `json:"errorMessage,omitempty"`
	Owner           Owner           `json:"userId"`
	Organization    string          `json:"organization,omitempty"`
	CreatedAt       time.Time       `json:"createdAt,omitzero"`
}

// UnmarshalJSON accepts either "id" or "_id" as the identifier.
func (v *Video) UnmarshalJSON(data []byte) error {
	type alias Video
	aux := struct {
		*alias
		MongoID JobID `json:"_id"`
	}{alias: (*alias)(v)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if !v.ID.Assigned() {
		v.ID = aux.MongoID
	}
	return nil
}

// Stats aggregates the caller's videos by status and classification.
type Stats struct {
	TotalVideos int   `json:"totalVideos"`
	Pending     int   `json:"pending"`
	Processing  int   `json:"processing"`
	Completed   int   `json:"completed"`
	Failed      int   `json:"failed"`
	Safe        int   `json:"safe"`
	Flagged     int   `json:"flagged"`
	TotalSize   int64 `json:"totalSize"`
}

// Frame is a thumbnail extracted from a processed video.
type Frame struct {
	ID             string  `json:"id"`
	Timestamp      float64 `json:"timestamp"`
	Data           string  `json:"data"`
	Classification string  `json:"classification,omitempty"`
}

// Pagination describes a page of a listing.
type Pagination struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	TotalVideos int `json:"totalVideos,omitempty"`
	TotalUsers  int `json:"totalUsers,omitempty"`
}

func (p Pagination) HasNext() bool { return p.CurrentPage < p.TotalPages }

// VideoFilter narrows a video listing. Zero values are omitted from the query.
type VideoFilter struct {
	Page            int
	Limit           int
	Status          VideoStatus
	SensitivityFlag SensitivityFlag
	Search          string
}

// Query encodes the filter as dashboard query parameters.
func (f VideoFilter) Query() map[string]string {
	q := make(map[string]string)
	if f.Page > 0 {
		q["page"] = strconv.Itoa(f.Page)
	}
	if f.Limit > 0 {
		q["limit"] = strconv.Itoa(f.Limit)
	}
	if f.Status != "" {
		q["status"] = string(f.Status)
	}
	if f.SensitivityFlag != "" {
		q["sensitivityFlag"] = string(f.SensitivityFlag)
	}
	if f.Search != "" {
		q["search"] = f.Search
	}
	return q
}

// VideoList is one page of videos.
type VideoList struct {
	Videos     []Video    `json:"videos"`
	Pagination Pagination `json:"pagination"`
}

// VideoUpdate carries editable video fields; nil pointers are left unchanged.
type VideoUpdate struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// UserFilter narrows the admin user listing.
type UserFilter struct {
	Page   int
	Limit  int
	Role   Role
	Search string
}

func (f UserFilter) Query() map[string]string {
	q := make(map[string]string)
	if f.Page > 0 {
		q["page"] = strconv.Itoa(f.Page)
	}
	if f.Limit > 0 {
		q["limit"] = strconv.Itoa(f.Limit)
	}
	if f.Role != "" {
		q["role"] = string(f.Role)
	}
	if f.Search != "" {
		q["search"] = f.Search
	}
	return q
}

// UserList is one page of users.
type UserList struct {
	Users      []Identity `json:"users"`
	Pagination Pagination `json:"pagination"`
}
