package tasks

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media_gateway/internal/models"
	"media_gateway/internal/providers"
)

func callback(taskID, status, videoURL, coverURL string) []byte {
	return []byte(fmt.Sprintf(`{"task_id":%q,"status":%q,"video_url":%q,"cover_url":%q}`, taskID, status, videoURL, coverURL))
}

func startTask(t *testing.T, h *harness) *models.AITask {
	t.Helper()
	task, err := h.orch.Generate(context.Background(), "user-1", textToVideo())
	require.NoError(t, err)
	return task
}

func TestNotify_SuccessMigratesMedia(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	task := startTask(t, h)

	res, err := h.orch.Notify(ctx, "evolink", callback(task.TaskID, "success",
		"https://vendor.example.com/out.mp4", "https://vendor.example.com/cover.jpg"))
	require.NoError(t, err)
	assert.Equal(t, &NotifyResult{Received: true}, res)

	stored := h.store.get(task.ID)
	assert.Equal(t, models.TaskStatusSuccess, stored.Status)
	require.NotNil(t, stored.Progress)
	assert.Equal(t, 100, *stored.Progress)
	require.NotNil(t, stored.ExpiresAt)
	assert.Equal(t, testNow.Add(DefaultOptions().AssetTTL), *stored.ExpiresAt)

	videoKey := fmt.Sprintf("videos/user-1/%s/0.mp4", task.ID)
	posterKey := fmt.Sprintf("posters/user-1/%s/0.jpg", task.ID)
	require.Len(t, stored.ResultAssets, 1)
	assert.Equal(t, models.ResultAsset{
		Type:      "video",
		URL:       "https://cdn.example.com/" + videoKey,
		Key:       videoKey,
		PosterKey: posterKey,
	}, stored.ResultAssets[0])

	require.Len(t, stored.TaskInfo.Videos, 1)
	assert.Equal(t, "https://cdn.example.com/"+videoKey, stored.TaskInfo.Videos[0].URL)
	assert.Equal(t, videoKey, stored.TaskInfo.Videos[0].StorageKey)

	notes := h.notifier.all()
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationTaskSuccess, notes[0].Type)
	assert.Equal(t, "Video generation completed", notes[0].Title)
	assert.Equal(t, "Your video generation task has completed successfully.", *notes[0].Content)
	assert.Empty(t, h.refunds.all())

	// Terminal tasks are served from the store
	queried, err := h.orch.Query(ctx, "user-1", task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSuccess, queried.Status)
	assert.Zero(t, h.evolink.queryCount())
}

func TestNotify_ReplayIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	task := startTask(t, h)
	body := callback(task.TaskID, "success", "https://vendor.example.com/out.mp4", "")

	_, err := h.orch.Notify(ctx, "evolink", body)
	require.NoError(t, err)
	first := h.store.get(task.ID)
	uploads := h.uploader.uploadCount()

	res, err := h.orch.Notify(ctx, "evolink", body)
	require.NoError(t, err)
	assert.Equal(t, &NotifyResult{Received: true, Message: "already completed"}, res)

	assert.Equal(t, first, h.store.get(task.ID))
	assert.Equal(t, uploads, h.uploader.uploadCount())
	assert.Len(t, h.notifier.all(), 1)
}

func TestNotify_UnknownTaskIsNoop(t *testing.T) {
	h := newHarness(t)
	task := startTask(t, h)
	before := h.store.get(task.ID)

	res, err := h.orch.Notify(context.Background(), "evolink", callback("never-issued", "success", "https://vendor.example.com/x.mp4", ""))
	require.NoError(t, err)
	assert.Equal(t, &NotifyResult{Received: true, Message: "task not found"}, res)

	assert.Equal(t, before, h.store.get(task.ID))
	assert.Zero(t, h.uploader.uploadCount())
	assert.Empty(t, h.notifier.all())
}

func TestNotify_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.orch.Notify(ctx, "evolink", []byte(`{"status":"success"}`))
	assert.ErrorIs(t, err, providers.ErrMissingTaskID)

	_, err = h.orch.Notify(ctx, "openai", []byte(`{"task_id":"x"}`))
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	_, err = h.orch.Notify(ctx, "evolink", []byte(`not json`))
	assert.Error(t, err)
}

func TestNotify_FailedTaskRefundsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	task := startTask(t, h)

	body := []byte(fmt.Sprintf(`{"task_id":%q,"status":"failed","error":"content policy violation"}`, task.TaskID))
	_, err := h.orch.Notify(ctx, "evolink", body)
	require.NoError(t, err)
	_, err = h.orch.Notify(ctx, "evolink", body)
	require.NoError(t, err)

	stored := h.store.get(task.ID)
	assert.Equal(t, models.TaskStatusFailed, stored.Status)
	assert.Equal(t, "content policy violation", stored.TaskInfo.ErrorMessage)
	assert.Nil(t, stored.Progress)

	notes := h.notifier.all()
	require.Len(t, notes, 1)
	assert.Equal(t, "Video generation failed", notes[0].Title)
	assert.Equal(t, "content policy violation", *notes[0].Content)

	refunds := h.refunds.all()
	require.Len(t, refunds, 1)
	assert.Equal(t, task.ID, refunds[0].TaskID)
	assert.Equal(t, 6, refunds[0].Amount)
}

func TestFinalize_DefaultFailureMessage(t *testing.T) {
	h := newHarness(t)
	task := startTask(t, h)

	_, err := h.orch.Notify(context.Background(), "evolink", callback(task.TaskID, "failed", "", ""))
	require.NoError(t, err)
	assert.Equal(t, "Your generation task has failed.", h.store.get(task.ID).TaskInfo.ErrorMessage)
}

func TestFinalize_MigrationFailureDowngrades(t *testing.T) {
	h := newHarness(t)
	h.uploader.failOn = "broken"
	task := startTask(t, h)

	_, err := h.orch.Notify(context.Background(), "evolink",
		callback(task.TaskID, "success", "https://vendor.example.com/broken.mp4", ""))
	require.NoError(t, err)

	stored := h.store.get(task.ID)
	assert.Equal(t, models.TaskStatusFailed, stored.Status)
	assert.Equal(t, "Video upload to storage failed.", stored.TaskInfo.ErrorMessage)
	assert.Empty(t, stored.TaskInfo.Videos)
	assert.Empty(t, stored.ResultAssets)
	assert.Nil(t, stored.ExpiresAt)
	assert.Nil(t, stored.Progress)

	notes := h.notifier.all()
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationTaskFailed, notes[0].Type)
	assert.Len(t, h.refunds.all(), 1)
}

func TestFinalize_PosterFailureIsTolerated(t *testing.T) {
	h := newHarness(t)
	h.uploader.failOn = "cover"
	task := startTask(t, h)

	_, err := h.orch.Notify(context.Background(), "evolink",
		callback(task.TaskID, "success", "https://vendor.example.com/out.mp4", "https://vendor.example.com/cover.jpg"))
	require.NoError(t, err)

	stored := h.store.get(task.ID)
	assert.Equal(t, models.TaskStatusSuccess, stored.Status)
	require.Len(t, stored.ResultAssets, 1)
	assert.Empty(t, stored.ResultAssets[0].PosterKey)
}

func TestFinalize_RehostedItemsKeepTheirKey(t *testing.T) {
	h := newHarness(t)
	task := startTask(t, h)
	h.evolink.queryResult = &providers.TaskResult{
		Status: models.TaskStatusSuccess,
		Info: models.TaskInfo{Videos: []models.MediaItem{{
			URL:        "https://cdn.example.com/evolink/video/abc.mp4",
			StorageKey: "evolink/video/abc.mp4",
		}}},
	}

	refreshed, err := h.orch.Query(context.Background(), "user-1", task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSuccess, refreshed.Status)
	assert.Zero(t, h.uploader.uploadCount())
	require.Len(t, refreshed.ResultAssets, 1)
	assert.Equal(t, "evolink/video/abc.mp4", refreshed.ResultAssets[0].Key)
}

func TestQuery_StatusNeverMovesBackwards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	task := startTask(t, h)

	progress := 40
	h.evolink.queryResult = &providers.TaskResult{
		Status: models.TaskStatusProcessing,
		Info:   models.TaskInfo{Progress: &progress},
	}
	refreshed, err := h.orch.Query(ctx, "user-1", task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusProcessing, refreshed.Status)
	require.NotNil(t, refreshed.Progress)
	assert.Equal(t, 40, *refreshed.Progress)

	// The vendor lags behind and reports pending again
	h.evolink.queryResult = &providers.TaskResult{Status: models.TaskStatusPending}
	refreshed, err = h.orch.Query(ctx, "user-1", task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusProcessing, refreshed.Status)
	assert.Equal(t, models.TaskStatusProcessing, h.store.get(task.ID).Status)
	assert.Equal(t, 2, h.evolink.queryCount())
	assert.Empty(t, h.notifier.all())
}

func TestQuery_UsesSnapshotModelID(t *testing.T) {
	h := newHarness(t)
	task := startTask(t, h)
	h.evolink.queryResult = &providers.TaskResult{Status: models.TaskStatusProcessing}

	_, err := h.orch.Query(context.Background(), "user-1", task.ID)
	require.NoError(t, err)
	assert.Equal(t, "seedance-2.0-evolink", h.evolink.queries[0].Model)
	assert.Equal(t, task.TaskID, h.evolink.queries[0].TaskID)
}

func TestQuery_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	task := startTask(t, h)

	_, err := h.orch.Query(ctx, "user-2", task.ID)
	assert.ErrorIs(t, err, ErrNoPermission)

	_, err = h.orch.Query(ctx, "user-1", "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	_, err = h.orch.Query(ctx, "user-1", "")
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestFinalize_ConcurrentReportsNotifyOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	task := startTask(t, h)
	h.evolink.queryResult = &providers.TaskResult{
		Status: models.TaskStatusSuccess,
		Info:   models.TaskInfo{Videos: []models.MediaItem{{URL: "https://vendor.example.com/out.mp4"}}},
	}
	body := callback(task.TaskID, "success", "https://vendor.example.com/out.mp4", "")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_, err := h.orch.Notify(ctx, "evolink", body)
				assert.NoError(t, err)
				return
			}
			refreshed, err := h.orch.Query(ctx, "user-1", task.ID)
			assert.NoError(t, err)
			assert.Equal(t, models.TaskStatusSuccess, refreshed.Status)
		}()
	}
	wg.Wait()

	assert.Equal(t, models.TaskStatusSuccess, h.store.get(task.ID).Status)
	assert.Len(t, h.notifier.all(), 1)
	assert.Empty(t, h.refunds.all())
}

func TestMediaOf_FallsBackToFirstFilledBucket(t *testing.T) {
	info := models.TaskInfo{Images: []models.MediaItem{{URL: "https://x/1.png"}}}

	items, bucket := mediaOf(models.MediaTypeVideo, info)
	require.Len(t, items, 1)
	assert.Equal(t, models.MediaTypeImage, bucket)

	items, _ = mediaOf(models.MediaTypeVideo, models.TaskInfo{})
	assert.Empty(t, items)
}

func TestImageFormat(t *testing.T) {
	ext, ct := imageFormat("https://x.example.com/a/b.JPG?sig=1", ".png", "image/png")
	assert.Equal(t, ".jpg", ext)
	assert.Equal(t, "image/jpeg", ct)

	ext, ct = imageFormat("https://x.example.com/a/b", ".png", "image/png")
	assert.Equal(t, ".png", ext)
	assert.Equal(t, "image/png", ct)
}

func TestQuery_TerminalReportSurvivesCallerLeaving(t *testing.T) {
	h := newHarness(t)
	h.store.put(activeTask("t1", "user-1"))
	ctx, cancel := context.WithCancel(context.Background())
	h.evolink.during = cancel
	h.evolink.queryResult = &providers.TaskResult{
		Status: models.TaskStatusFailed,
		Info:   models.TaskInfo{ErrorMessage: "content policy"},
	}

	task, err := h.orch.Query(ctx, "user-1", "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, task.Status)

	assert.Equal(t, models.TaskStatusFailed, h.store.get("t1").Status)
	assert.Len(t, h.notifier.all(), 1)
	refunds := h.refunds.all()
	require.Len(t, refunds, 1)
	assert.Equal(t, "t1", refunds[0].TaskID)
	assert.Equal(t, 6, refunds[0].Amount)
}

func TestQuery_InterruptedMigrationLeavesTaskRunning(t *testing.T) {
	h := newHarness(t)
	h.store.put(activeTask("t1", "user-1"))
	ctx, cancel := context.WithCancel(context.Background())
	h.evolink.during = cancel
	h.evolink.queryResult = &providers.TaskResult{
		Status: models.TaskStatusSuccess,
		Info:   models.TaskInfo{Videos: []models.MediaItem{{URL: "https://vendor.example.com/out.mp4"}}},
	}

	_, err := h.orch.Query(ctx, "user-1", "t1")
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, models.TaskStatusProcessing, h.store.get("t1").Status)
	assert.Empty(t, h.notifier.all())
	assert.Empty(t, h.refunds.all())

	// The next poll completes it
	h.evolink.during = nil
	task, err := h.orch.Query(context.Background(), "user-1", "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSuccess, task.Status)
}

// deletingStore soft-deletes a task right before its update lands
type deletingStore struct {
	*memStore
}

func (s deletingStore) ApplyUpdate(ctx context.Context, id string, u models.TaskUpdate) (bool, error) {
	if task := s.get(id); task != nil {
		if _, err := s.SoftDelete(ctx, id, task.UserID); err != nil {
			return false, err
		}
	}
	return s.memStore.ApplyUpdate(ctx, id, u)
}

func TestNotify_TaskDeletedDuringReport(t *testing.T) {
	h := newHarness(t)
	task := startTask(t, h)
	h.orch.deps.Store = deletingStore{h.store}

	res, err := h.orch.Notify(context.Background(), "evolink", callback(task.TaskID, "success", "https://vendor.example.com/out.mp4", ""))
	require.NoError(t, err)
	assert.Equal(t, &NotifyResult{Received: true, Message: "task not found"}, res)

	assert.NotNil(t, h.store.get(task.ID).DeletedAt)
	assert.Empty(t, h.notifier.all())
	assert.Empty(t, h.refunds.all())
}
