package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from TaskStatus
		to   TaskStatus
		want bool
	}{
		{TaskStatusPending, TaskStatusPending, true},
		{TaskStatusPending, TaskStatusProcessing, true},
		{TaskStatusPending, TaskStatusSuccess, true},
		{TaskStatusPending, TaskStatusFailed, true},
		{TaskStatusProcessing, TaskStatusProcessing, true},
		{TaskStatusProcessing, TaskStatusPending, false},
		{TaskStatusProcessing, TaskStatusFailed, true},
		{TaskStatusSuccess, TaskStatusFailed, false},
		{TaskStatusSuccess, TaskStatusProcessing, false},
		{TaskStatusSuccess, TaskStatusExpired, true},
		{TaskStatusFailed, TaskStatusSuccess, false},
		{TaskStatusFailed, TaskStatusExpired, false},
		{TaskStatusExpired, TaskStatusSuccess, false},
		{TaskStatusPending, TaskStatusExpired, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTaskStatus_Advance(t *testing.T) {
	assert.Equal(t, TaskStatusProcessing, TaskStatusProcessing.Advance(TaskStatusPending))
	assert.Equal(t, TaskStatusProcessing, TaskStatusPending.Advance(TaskStatusProcessing))
	assert.Equal(t, TaskStatusSuccess, TaskStatusSuccess.Advance(TaskStatusFailed))
}

func TestTaskStatus_Flags(t *testing.T) {
	assert.False(t, TaskStatusPending.IsTerminal())
	assert.False(t, TaskStatusProcessing.IsTerminal())
	assert.True(t, TaskStatusSuccess.IsTerminal())
	assert.True(t, TaskStatusFailed.IsTerminal())
	assert.True(t, TaskStatusExpired.IsTerminal())

	assert.True(t, TaskStatusPending.IsActive())
	assert.False(t, TaskStatusFailed.IsActive())
}

func TestMediaType_IsValid(t *testing.T) {
	assert.True(t, MediaTypeVideo.IsValid())
	assert.True(t, MediaTypeMusic.IsValid())
	assert.False(t, MediaType("hologram").IsValid())
}

func TestTaskInfo_ScanRoundTrip(t *testing.T) {
	progress := 40
	info := TaskInfo{
		Status:   "processing",
		Progress: &progress,
		Videos:   []MediaItem{{URL: "https://cdn.example.com/a.mp4", ThumbnailURL: "https://cdn.example.com/a.jpg"}},
	}

	value, err := info.Value()
	require.NoError(t, err)

	var got TaskInfo
	require.NoError(t, got.Scan(value))
	assert.Equal(t, info, got)

	// NULL resets to zero value
	require.NoError(t, got.Scan(nil))
	assert.Equal(t, TaskInfo{}, got)
}

func TestTaskInfo_Media(t *testing.T) {
	items := []MediaItem{{URL: "u"}}
	info := TaskInfo{}.WithMedia(MediaTypeMusic, items)

	assert.Equal(t, items, info.Songs)
	assert.Equal(t, items, info.Media(MediaTypeMusic))
	assert.Empty(t, info.Media(MediaTypeVideo))

	info = info.WithMedia(MediaTypeVideo, items)
	assert.Equal(t, items, info.Videos)
}

func TestResultAssets_ValueAndKeys(t *testing.T) {
	var empty ResultAssets
	v, err := empty.Value()
	require.NoError(t, err)
	assert.Nil(t, v, "empty assets are stored as NULL")

	assets := ResultAssets{
		{Type: "video", URL: "https://s/videos/u/t/0.mp4", Key: "videos/u/t/0.mp4", PosterKey: "posters/u/t/0.jpg"},
		{Type: "video", URL: "https://s/videos/u/t/1.mp4", Key: "videos/u/t/1.mp4"},
	}
	assert.Equal(t, []string{"videos/u/t/0.mp4", "posters/u/t/0.jpg", "videos/u/t/1.mp4"}, assets.Keys())

	v, err = assets.Value()
	require.NoError(t, err)

	var scanned ResultAssets
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, assets, scanned)
}

func TestAITask_JSONHidesDeletedAt(t *testing.T) {
	now := time.Now()
	task := AITask{ID: "t1", Status: TaskStatusPending, DeletedAt: &now}

	b, err := json.Marshal(task)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "deleted")
	assert.Contains(t, string(b), `"status":"pending"`)
}

func TestSubscription_IsActive(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	var nilSub *Subscription
	assert.False(t, nilSub.IsActive(now))
	assert.True(t, (&Subscription{Status: "active"}).IsActive(now))
	assert.True(t, (&Subscription{Status: "active", CurrentPeriodEnd: &future}).IsActive(now))
	assert.False(t, (&Subscription{Status: "active", CurrentPeriodEnd: &past}).IsActive(now))
	assert.False(t, (&Subscription{Status: "canceled"}).IsActive(now))
}
