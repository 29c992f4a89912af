package models

import (
	"database/sql/driver"
	"time"
)

// TaskStatus is the lifecycle state of an AI task.
//
//	pending -> processing -> success | failed
//	success -> expired (expiry sweep only)
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusSuccess    TaskStatus = "success"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusExpired    TaskStatus = "expired"
)

// IsTerminal reports whether the task has finished executing.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSuccess, TaskStatusFailed, TaskStatusExpired:
		return true
	default:
		return false
	}
}

// IsActive reports whether the task counts towards the concurrency cap.
func (s TaskStatus) IsActive() bool {
	return s == TaskStatusPending || s == TaskStatusProcessing
}

// PredecessorsOf lists the stored statuses a task may hold when moving to next.
// A non-terminal status may be re-applied to itself (progress updates).
func PredecessorsOf(next TaskStatus) []TaskStatus {
	switch next {
	case TaskStatusPending:
		return []TaskStatus{TaskStatusPending}
	case TaskStatusProcessing, TaskStatusSuccess, TaskStatusFailed:
		return []TaskStatus{TaskStatusPending, TaskStatusProcessing}
	case TaskStatusExpired:
		return []TaskStatus{TaskStatusSuccess}
	default:
		return nil
	}
}

// CanTransitionTo reports whether moving from s to next keeps the lifecycle forward-only.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	for _, from := range PredecessorsOf(next) {
		if from == s {
			return true
		}
	}
	return false
}

// Advance returns the later of s and observed, so a lagging vendor report
// (e.g. pending after processing) never moves a task backwards.
func (s TaskStatus) Advance(observed TaskStatus) TaskStatus {
	if s.CanTransitionTo(observed) {
		return observed
	}
	return s
}

// MediaType is the kind of media a task produces.
type MediaType string

const (
	MediaTypeVideo MediaType = "video"
	MediaTypeImage MediaType = "image"
	MediaTypeMusic MediaType = "music"
	MediaTypeText  MediaType = "text"
)

// IsValid checks if the media type is known
func (m MediaType) IsValid() bool {
	switch m {
	case MediaTypeVideo, MediaTypeImage, MediaTypeMusic, MediaTypeText:
		return true
	default:
		return false
	}
}

// AITask is the persisted record of one generation request.
type AITask struct {
	ID                      string       `db:"id" json:"id"`
	UserID                  string       `db:"user_id" json:"userId"`
	MediaType               MediaType    `db:"media_type" json:"mediaType"`
	Provider                string       `db:"provider" json:"provider"`
	Model                   string       `db:"model" json:"model"`
	ProviderModelIDSnapshot string       `db:"provider_model_id_snapshot" json:"providerModelIdSnapshot"`
	Prompt                  string       `db:"prompt" json:"prompt"`
	Scene                   string       `db:"scene" json:"scene"`
	Options                 TaskOptions  `db:"options" json:"options,omitempty"`
	Status                  TaskStatus   `db:"status" json:"status"`
	Progress                *int         `db:"progress" json:"progress,omitempty"`
	TaskID                  string       `db:"task_id" json:"taskId"`
	TaskInfo                TaskInfo     `db:"task_info" json:"taskInfo"`
	TaskResult              JSONB        `db:"task_result" json:"taskResult,omitempty"`
	ResultAssets            ResultAssets `db:"result_assets" json:"resultAssets,omitempty"`
	CostCredits             int          `db:"cost_credits" json:"costCredits"`
	CreditID                *string      `db:"credit_id" json:"creditId,omitempty"`
	ExpiresAt               *time.Time   `db:"expires_at" json:"expiresAt,omitempty"`
	CreatedAt               time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt               time.Time    `db:"updated_at" json:"updatedAt"`
	DeletedAt               *time.Time   `db:"deleted_at" json:"-"`
}

// TaskUpdate is the set of fields written when a task advances.
// Nil pointers are written as NULL, so callers always send the full target state.
type TaskUpdate struct {
	Status       TaskStatus
	Progress     *int
	TaskInfo     TaskInfo
	TaskResult   JSONB
	ResultAssets ResultAssets
	ExpiresAt    *time.Time
}

// TaskOptions are the caller's request options (image inputs, resolution, duration...).
type TaskOptions map[string]any

func (o TaskOptions) Value() (driver.Value, error) {
	if o == nil {
		return nil, nil
	}
	return marshalJSONB(o)
}

func (o *TaskOptions) Scan(value any) error {
	*o = nil
	return scanJSONB(value, o)
}

// MediaItem is one produced media file as reported by the vendor or after migration.
type MediaItem struct {
	ID           string `json:"id,omitempty"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	StorageKey   string `json:"storageKey,omitempty"`
	PosterKey    string `json:"posterKey,omitempty"`
}

// TaskInfo is the normalized status payload of a task.
type TaskInfo struct {
	Status       string      `json:"status,omitempty"` // vendor's own status string
	Progress     *int        `json:"progress,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	Videos       []MediaItem `json:"videos,omitempty"`
	Images       []MediaItem `json:"images,omitempty"`
	Songs        []MediaItem `json:"songs,omitempty"`
	CreateTime   *time.Time  `json:"createTime,omitempty"`
}

// Media returns the produced items of the given media type.
func (t TaskInfo) Media(mediaType MediaType) []MediaItem {
	switch mediaType {
	case MediaTypeImage:
		return t.Images
	case MediaTypeMusic:
		return t.Songs
	default:
		return t.Videos
	}
}

// WithMedia returns a copy of t with the items of mediaType replaced.
func (t TaskInfo) WithMedia(mediaType MediaType, items []MediaItem) TaskInfo {
	switch mediaType {
	case MediaTypeImage:
		t.Images = items
	case MediaTypeMusic:
		t.Songs = items
	default:
		t.Videos = items
	}
	return t
}

func (t TaskInfo) Value() (driver.Value, error) {
	return marshalJSONB(t)
}

func (t *TaskInfo) Scan(value any) error {
	*t = TaskInfo{}
	return scanJSONB(value, t)
}

// ResultAsset describes a media object held in durable storage.
type ResultAsset struct {
	Type      string `json:"type"`
	URL       string `json:"url"`
	Key       string `json:"key"`
	PosterKey string `json:"posterKey,omitempty"`
}

// ResultAssets is stored as a jsonb array; an empty list is stored as NULL.
type ResultAssets []ResultAsset

// Keys returns every storage key referenced by the assets.
func (r ResultAssets) Keys() []string {
	keys := make([]string, 0, len(r)*2)
	for _, a := range r {
		if a.Key != "" {
			keys = append(keys, a.Key)
		}
		if a.PosterKey != "" {
			keys = append(keys, a.PosterKey)
		}
	}
	return keys
}

func (r ResultAssets) Value() (driver.Value, error) {
	if len(r) == 0 {
		return nil, nil
	}
	return marshalJSONB([]ResultAsset(r))
}

func (r *ResultAssets) Scan(value any) error {
	*r = nil
	return scanJSONB(value, r)
}
