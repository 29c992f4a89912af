package tasks

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"media_gateway/internal/billing"
	"media_gateway/internal/models"
	"media_gateway/internal/objectstore"
	"media_gateway/internal/providers"
)

const (
	msgTaskFailed    = "Your generation task has failed."
	msgUploadFailed  = "Video upload to storage failed."
	titleTaskSuccess = "Video generation completed"
	titleTaskFailed  = "Video generation failed"
)

// finalize folds a vendor report into task and commits it with a conditional
// update. Only the caller whose update applies fires the side effects; a
// caller that lost the race gets the stored task back.
func (o *Orchestrator) finalize(ctx context.Context, task *models.AITask, provider providers.Provider, result *providers.TaskResult) (*models.AITask, error) {
	next := task.Status.Advance(result.Status)
	info := result.Info

	update := models.TaskUpdate{
		Status:       next,
		Progress:     task.Progress,
		TaskInfo:     info,
		TaskResult:   result.Raw,
		ResultAssets: task.ResultAssets,
		ExpiresAt:    task.ExpiresAt,
	}
	if info.Progress != nil {
		update.Progress = info.Progress
	}

	switch next {
	case models.TaskStatusSuccess:
		migrated, assets, err := o.migrate(ctx, task, provider, info)
		if err != nil && ctx.Err() != nil {
			// Caller went away mid-copy; the next poll or webhook retries it
			return nil, fmt.Errorf("media migration interrupted: %w", context.Cause(ctx))
		}
		if err != nil {
			o.logger.Error("Media migration failed, marking task failed",
				"task_id", task.ID, "provider", task.Provider, "error", err)
			update.Status = models.TaskStatusFailed
			update.TaskInfo.Videos, update.TaskInfo.Images, update.TaskInfo.Songs = nil, nil, nil
			update.TaskInfo.ErrorMessage = msgUploadFailed
			update.Progress = nil
			update.ResultAssets = nil
			update.ExpiresAt = nil
			break
		}
		complete := 100
		expiresAt := o.opts.Now().Add(o.opts.AssetTTL)
		update.TaskInfo = migrated
		update.Progress = &complete
		update.ResultAssets = assets
		update.ExpiresAt = &expiresAt

	case models.TaskStatusFailed:
		if update.TaskInfo.ErrorMessage == "" {
			update.TaskInfo.ErrorMessage = msgTaskFailed
		}
		update.Progress = nil
	}

	ctx, cancel := detached(ctx)
	defer cancel()

	applied, err := o.deps.Store.ApplyUpdate(ctx, task.ID, update)
	if err != nil {
		return nil, err
	}
	if !applied {
		o.logger.Debug("Task update lost race, reloading", "task_id", task.ID, "status", update.Status)
		return o.deps.Store.GetByID(ctx, task.ID)
	}

	refreshed := *task
	refreshed.Status = update.Status
	refreshed.Progress = update.Progress
	refreshed.TaskInfo = update.TaskInfo
	refreshed.TaskResult = update.TaskResult
	refreshed.ResultAssets = update.ResultAssets
	refreshed.ExpiresAt = update.ExpiresAt

	if update.Status != task.Status {
		o.logger.Info("Task status changed",
			"task_id", task.ID, "provider", task.Provider, "from", task.Status, "to", update.Status)
	}

	switch update.Status {
	case models.TaskStatusSuccess:
		o.notify(ctx, &refreshed, models.NotificationTaskSuccess, titleTaskSuccess,
			fmt.Sprintf("Your %s generation task has completed successfully.", task.MediaType))
	case models.TaskStatusFailed:
		o.notify(ctx, &refreshed, models.NotificationTaskFailed, titleTaskFailed, update.TaskInfo.ErrorMessage)
		o.requestRefund(ctx, &refreshed)
	}

	return &refreshed, nil
}

func (o *Orchestrator) notify(ctx context.Context, task *models.AITask, kind, title, content string) {
	if o.deps.Notifier == nil {
		return
	}
	if _, err := o.deps.Notifier.Create(ctx, task.UserID, kind, title, content, task.ID); err != nil {
		o.logger.Error("Failed to create notification", "task_id", task.ID, "type", kind, "error", err)
	}
}

func (o *Orchestrator) requestRefund(ctx context.Context, task *models.AITask) {
	if task.CostCredits <= 0 {
		return
	}
	req := billing.RefundRequest{
		UserID:      task.UserID,
		TaskID:      task.ID,
		Amount:      task.CostCredits,
		Reason:      task.TaskInfo.ErrorMessage,
		RequestedAt: o.opts.Now(),
	}
	if o.deps.Refunds != nil {
		err := o.deps.Refunds.EnqueueRefund(ctx, req)
		if err == nil {
			return
		}
		o.logger.Error("Failed to enqueue refund, refunding inline", "task_id", task.ID, "error", err)
	}
	if err := o.deps.Billing.Refund(ctx, req); err != nil {
		o.logger.Error("Refund failed", "task_id", task.ID, "user_id", task.UserID, "error", err)
	}
}

// mediaKind describes where a media type is stored
type mediaKind struct {
	dir         string
	assetType   string
	ext         string
	contentType string
}

var mediaKinds = map[models.MediaType]mediaKind{
	models.MediaTypeVideo: {dir: "videos", assetType: "video", ext: ".mp4", contentType: "video/mp4"},
	models.MediaTypeImage: {dir: "images", assetType: "image", ext: ".png", contentType: "image/png"},
	models.MediaTypeMusic: {dir: "audio", assetType: "audio", ext: ".mp3", contentType: "audio/mpeg"},
}

// mediaOf returns the produced items for the task's media type and the bucket
// they were found in. Webhook parsers may file items under another bucket, so
// the first non-empty one is used as a fallback.
func mediaOf(mediaType models.MediaType, info models.TaskInfo) ([]models.MediaItem, models.MediaType) {
	if items := info.Media(mediaType); len(items) > 0 {
		return items, mediaType
	}
	for _, bucket := range []models.MediaType{models.MediaTypeVideo, models.MediaTypeImage, models.MediaTypeMusic} {
		if items := info.Media(bucket); len(items) > 0 {
			return items, bucket
		}
	}
	return nil, mediaType
}

// migrate copies every produced item to {dir}/{userId}/{taskId}/{i}.{ext}
// concurrently. Posters go to posters/{userId}/{taskId}/{i}.jpg and never
// fail the migration. Items already re-hosted by the provider keep their key.
func (o *Orchestrator) migrate(ctx context.Context, task *models.AITask, provider providers.Provider, info models.TaskInfo) (models.TaskInfo, models.ResultAssets, error) {
	items, bucket := mediaOf(task.MediaType, info)
	if len(items) == 0 {
		return info, nil, nil
	}
	if o.deps.Uploader == nil {
		return info, nil, fmt.Errorf("no object storage configured")
	}

	kind, ok := mediaKinds[task.MediaType]
	if !ok {
		kind = mediaKinds[models.MediaTypeVideo]
	}

	var authorize func(*http.Request)
	if a, ok := provider.(providers.DownloadAuthorizer); ok {
		authorize = a.AuthorizeDownload
	}

	migrated := make([]models.MediaItem, len(items))
	assets := make([]*models.ResultAsset, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.MigrationConcurrency)

	for i, item := range items {
		migrated[i] = item
		if item.URL == "" && item.StorageKey == "" {
			continue
		}

		g.Go(func() error {
			if item.StorageKey != "" {
				assets[i] = &models.ResultAsset{
					Type:      kind.assetType,
					URL:       item.URL,
					Key:       item.StorageKey,
					PosterKey: item.PosterKey,
				}
				return nil
			}

			ext := kind.ext
			contentType := kind.contentType
			if task.MediaType == models.MediaTypeImage {
				ext, contentType = imageFormat(item.URL, ext, contentType)
			}

			key := fmt.Sprintf("%s/%s/%s/%d%s", kind.dir, task.UserID, task.ID, i, ext)
			uploaded, err := o.deps.Uploader.DownloadAndUpload(gctx, objectstore.UploadRequest{
				URL:         item.URL,
				Key:         key,
				ContentType: contentType,
				Authorize:   authorize,
			})
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}

			asset := &models.ResultAsset{Type: kind.assetType, URL: uploaded.URL, Key: key}
			m := migrated[i]
			m.URL = uploaded.URL
			m.StorageKey = key

			if item.ThumbnailURL != "" {
				posterKey := fmt.Sprintf("posters/%s/%s/%d.jpg", task.UserID, task.ID, i)
				poster, err := o.deps.Uploader.DownloadAndUpload(gctx, objectstore.UploadRequest{
					URL:         item.ThumbnailURL,
					Key:         posterKey,
					ContentType: "image/jpeg",
					Authorize:   authorize,
				})
				if err != nil {
					o.logger.Warn("Poster upload failed", "task_id", task.ID, "index", i, "error", err)
				} else {
					asset.PosterKey = posterKey
					m.PosterKey = posterKey
					m.ThumbnailURL = poster.URL
				}
			}

			migrated[i] = m
			assets[i] = asset
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return info, nil, err
	}

	var out models.ResultAssets
	for _, a := range assets {
		if a != nil {
			out = append(out, *a)
		}
	}
	return info.WithMedia(bucket, migrated), out, nil
}

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".gif": true}

// imageFormat picks the file extension and content type from the source URL
func imageFormat(rawURL, ext, contentType string) (string, string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ext, contentType
	}
	found := strings.ToLower(path.Ext(u.Path))
	if !imageExts[found] {
		return ext, contentType
	}
	if ct := mime.TypeByExtension(found); ct != "" {
		contentType = ct
	}
	return found, contentType
}
