// Package tasks drives the AI task lifecycle: it starts remote generations,
// folds vendor status reports (polling and webhooks) into the stored task,
// migrates produced media to durable storage and fires the one-off side
// effects of a task reaching a terminal state.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"media_gateway/internal/billing"
	"media_gateway/internal/models"
	"media_gateway/internal/objectstore"
	"media_gateway/internal/providers"
	"media_gateway/internal/storage"
	"media_gateway/internal/utils"
)

// Store is the task persistence the orchestrator needs
type Store interface {
	Create(ctx context.Context, task *models.AITask) error
	GetByID(ctx context.Context, id string) (*models.AITask, error)
	GetByProviderTaskID(ctx context.Context, provider, taskID string) (*models.AITask, error)
	ApplyUpdate(ctx context.Context, id string, u models.TaskUpdate) (bool, error)
	CountActiveByUser(ctx context.Context, userID string) (int, error)
	SoftDelete(ctx context.Context, id, userID string) (bool, error)
	ListByUser(ctx context.Context, filter storage.TaskListFilter) (*storage.TaskListResult, error)
}

// ModelRegistry resolves logical models to providers and prices
type ModelRegistry interface {
	Get(ctx context.Context, id string) (*models.ModelConfig, error)
	Resolve(cfg *models.ModelConfig, provider string) string
	CostFor(ctx context.Context, modelID, scene string) (int, error)
}

// ProviderSource returns the adapter registered under a provider name
type ProviderSource interface {
	Get(name string) (providers.Provider, error)
}

// Notifier records user notifications
type Notifier interface {
	Create(ctx context.Context, userID, kind, title, content, taskID string) (*models.Notification, error)
}

// RefundQueue schedules refunds for failed tasks
type RefundQueue interface {
	EnqueueRefund(ctx context.Context, req billing.RefundRequest) error
}

// CleanupQueue schedules a background retry of failed asset deletions
type CleanupQueue interface {
	EnqueueCleanup(ctx context.Context, req CleanupRequest) error
}

// Subscriptions reports whether a user has a paid plan
type Subscriptions interface {
	HasActive(ctx context.Context, userID string) (bool, error)
}

// Uploader copies vendor media into durable storage and removes it again
type Uploader interface {
	DownloadAndUpload(ctx context.Context, req objectstore.UploadRequest) (*objectstore.UploadResult, error)
	Delete(ctx context.Context, keys ...string) error
}

// Dependencies are the collaborators of an Orchestrator. Refunds, Cleanup and
// Subscriptions are optional.
type Dependencies struct {
	Store         Store
	Models        ModelRegistry
	Providers     ProviderSource
	Billing       billing.Service
	Refunds       RefundQueue
	Notifier      Notifier
	Uploader      Uploader
	Cleanup       CleanupQueue
	Subscriptions Subscriptions
}

// Options tune the lifecycle
type Options struct {
	// CallbackURL builds the webhook URL handed to a provider
	CallbackURL          func(provider string) string
	AssetTTL             time.Duration
	FreeConcurrency      int
	PaidConcurrency      int
	MigrationConcurrency int
	Now                  func() time.Time
}

// DefaultOptions returns the production lifecycle settings
func DefaultOptions() Options {
	return Options{
		CallbackURL:          func(string) string { return "" },
		AssetTTL:             30 * 24 * time.Hour,
		FreeConcurrency:      1,
		PaidConcurrency:      3,
		MigrationConcurrency: 4,
		Now:                  time.Now,
	}
}

// sideEffectTimeout bounds writes that must complete after the caller is gone
const sideEffectTimeout = 30 * time.Second

// detached keeps ctx's values but drops its cancellation and deadline
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
}

// Orchestrator implements generate, query, notify, retry, delete and list
type Orchestrator struct {
	deps   Dependencies
	opts   Options
	logger *utils.Logger
}

// NewOrchestrator creates an orchestrator. Zero options fall back to defaults.
func NewOrchestrator(deps Dependencies, opts Options) *Orchestrator {
	defaults := DefaultOptions()
	if opts.CallbackURL == nil {
		opts.CallbackURL = defaults.CallbackURL
	}
	if opts.AssetTTL <= 0 {
		opts.AssetTTL = defaults.AssetTTL
	}
	if opts.FreeConcurrency <= 0 {
		opts.FreeConcurrency = defaults.FreeConcurrency
	}
	if opts.PaidConcurrency <= 0 {
		opts.PaidConcurrency = defaults.PaidConcurrency
	}
	if opts.MigrationConcurrency <= 0 {
		opts.MigrationConcurrency = defaults.MigrationConcurrency
	}
	if opts.Now == nil {
		opts.Now = defaults.Now
	}
	if deps.Billing == nil {
		deps.Billing = billing.NewNoopService()
	}

	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		logger: utils.NewLogger("tasks"),
	}
}

// GenerateRequest is a user's request to start a generation
type GenerateRequest struct {
	MediaType  models.MediaType
	Model      string
	Prompt     string
	Options    map[string]any
	Scene      string
	Resolution string
	Duration   any
}

// launchSpec is a fully resolved generation, shared by Generate and Retry
type launchSpec struct {
	userID          string
	mediaType       models.MediaType
	provider        string
	model           string
	providerModelID string
	prompt          string
	scene           string
	options         models.TaskOptions
	cost            int
}

// Generate starts a new task for userID
func (o *Orchestrator) Generate(ctx context.Context, userID string, req GenerateRequest) (*models.AITask, error) {
	if req.MediaType == "" || req.Model == "" {
		return nil, fmt.Errorf("%w: mediaType and model are required", ErrInvalidParams)
	}
	if req.Prompt == "" && len(req.Options) == 0 {
		return nil, ErrPromptOrOptionsRequired
	}
	if !req.MediaType.IsValid() {
		return nil, ErrInvalidMediaType
	}
	if req.MediaType == models.MediaTypeMusic {
		req.Scene = models.SceneTextToMusic
	}

	cfg, err := o.deps.Models.Get(ctx, req.Model)
	if err != nil {
		if errors.Is(err, storage.ErrModelConfigNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, req.Model)
		}
		return nil, fmt.Errorf("failed to load model config: %w", err)
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrModelDisabled, req.Model)
	}
	if !cfg.SupportsMode(req.Scene) {
		return nil, fmt.Errorf("%w: model %s does not support %q", ErrSceneNotSupported, req.Model, req.Scene)
	}

	providerModelID := o.deps.Models.Resolve(cfg, cfg.CurrentProvider)
	if providerModelID == "" {
		return nil, fmt.Errorf("%w: model %s on %s", ErrModelNotResolvable, req.Model, cfg.CurrentProvider)
	}

	// Active task cap, shared with Retry
	if err := o.checkConcurrency(ctx, userID); err != nil {
		return nil, err
	}

	cost, err := o.deps.Models.CostFor(ctx, req.Model, req.Scene)
	if err != nil {
		return nil, err
	}

	options := models.TaskOptions{}
	for k, v := range req.Options {
		options[k] = v
	}
	if req.Resolution != "" {
		options["resolution"] = req.Resolution
	}
	if req.Duration != nil && req.Duration != "" {
		options["duration"] = req.Duration
	}

	return o.launch(ctx, launchSpec{
		userID:          userID,
		mediaType:       req.MediaType,
		provider:        cfg.CurrentProvider,
		model:           req.Model,
		providerModelID: providerModelID,
		prompt:          req.Prompt,
		scene:           req.Scene,
		options:         options,
		cost:            cost,
	})
}

// Retry starts a new task with the parameters of a failed one. The provider
// mapping and price are taken from the current model config when it exists.
func (o *Orchestrator) Retry(ctx context.Context, userID, taskID string) (*models.AITask, error) {
	if taskID == "" {
		return nil, ErrInvalidParams
	}

	original, err := o.deps.Store.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, storage.ErrTaskNotFound) {
			return nil, ErrTaskNotOwned
		}
		return nil, err
	}
	if original.UserID != userID {
		return nil, ErrTaskNotOwned
	}
	if original.Status != models.TaskStatusFailed {
		return nil, ErrNotRetryable
	}

	if err := o.checkConcurrency(ctx, userID); err != nil {
		return nil, err
	}

	cost := original.CostCredits
	if original.Model != "" && original.Scene != "" {
		if c, err := o.deps.Models.CostFor(ctx, original.Model, original.Scene); err == nil {
			cost = c
		} else {
			o.logger.Warn("Using original task price", "task_id", original.ID, "error", err)
		}
	}

	provider := original.Provider
	providerModelID := original.ProviderModelIDSnapshot
	if providerModelID == "" {
		providerModelID = original.Model
	}

	cfg, err := o.deps.Models.Get(ctx, original.Model)
	switch {
	case err == nil:
		if !cfg.Enabled {
			return nil, fmt.Errorf("%w: %s", ErrModelDisabled, original.Model)
		}
		provider = cfg.CurrentProvider
		providerModelID = o.deps.Models.Resolve(cfg, provider)
		if providerModelID == "" {
			return nil, fmt.Errorf("%w: model %s on %s", ErrModelNotResolvable, original.Model, provider)
		}
	case errors.Is(err, storage.ErrModelConfigNotFound):
	default:
		return nil, fmt.Errorf("failed to load model config: %w", err)
	}

	return o.launch(ctx, launchSpec{
		userID:          userID,
		mediaType:       original.MediaType,
		provider:        provider,
		model:           original.Model,
		providerModelID: providerModelID,
		prompt:          original.Prompt,
		scene:           original.Scene,
		options:         original.Options,
		cost:            cost,
	})
}

// launch charges the user, starts the remote task and persists it. A failed
// vendor call refunds the charge before returning.
func (o *Orchestrator) launch(ctx context.Context, spec launchSpec) (*models.AITask, error) {
	provider, err := o.deps.Providers.Get(spec.provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, spec.provider)
	}

	remaining, err := o.deps.Billing.RemainingCredits(ctx, spec.userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read credits: %w", err)
	}
	if remaining < spec.cost {
		return nil, billing.ErrInsufficientCredits
	}

	id := uuid.NewString()
	creditID, err := o.deps.Billing.Debit(ctx, spec.userID, spec.cost, id)
	if err != nil {
		return nil, err
	}

	result, err := provider.Generate(ctx, providers.GenerateParams{
		MediaType:   spec.mediaType,
		Model:       spec.providerModelID,
		Prompt:      spec.prompt,
		Scene:       spec.scene,
		Options:     spec.options,
		CallbackURL: o.opts.CallbackURL(spec.provider),
	})
	if err == nil && (result == nil || result.TaskID == "") {
		err = fmt.Errorf("%w, mediaType: %s, provider: %s, model: %s", ErrGenerateFailed, spec.mediaType, spec.provider, spec.model)
	}
	if err != nil {
		o.refundNow(ctx, spec.userID, id, spec.cost, "generate failed")
		return nil, err
	}

	task := &models.AITask{
		ID:                      id,
		UserID:                  spec.userID,
		MediaType:               spec.mediaType,
		Provider:                spec.provider,
		Model:                   spec.model,
		ProviderModelIDSnapshot: spec.providerModelID,
		Prompt:                  spec.prompt,
		Scene:                   spec.scene,
		Options:                 spec.options,
		Status:                  result.Status,
		TaskID:                  result.TaskID,
		TaskInfo:                result.Info,
		TaskResult:              result.Raw,
		CostCredits:             spec.cost,
	}
	if creditID != "" {
		task.CreditID = &creditID
	}
	// A vendor that finishes synchronously still goes through finalization
	if task.Status == "" || task.Status.IsTerminal() {
		task.Status = models.TaskStatusPending
	}

	// The vendor job exists and has been paid for
	saveCtx, cancel := detached(ctx)
	defer cancel()
	if err := o.deps.Store.Create(saveCtx, task); err != nil {
		o.refundNow(ctx, spec.userID, id, spec.cost, "task not saved")
		return nil, fmt.Errorf("failed to save task: %w", err)
	}

	o.logger.Info("Task started",
		"task_id", task.ID,
		"user_id", spec.userID,
		"provider", spec.provider,
		"model", spec.model,
		"provider_task_id", task.TaskID,
		"cost", spec.cost,
	)

	if result.Status.IsTerminal() {
		return o.finalize(ctx, task, provider, result)
	}
	return task, nil
}

// refundNow returns a charge synchronously, falling back to the refund queue
func (o *Orchestrator) refundNow(ctx context.Context, userID, taskID string, amount int, reason string) {
	ctx, cancel := detached(ctx)
	defer cancel()

	req := billing.RefundRequest{
		UserID:      userID,
		TaskID:      taskID,
		Amount:      amount,
		Reason:      reason,
		RequestedAt: o.opts.Now(),
	}
	err := o.deps.Billing.Refund(ctx, req)
	if err == nil {
		return
	}
	o.logger.Error("Refund failed", "task_id", taskID, "user_id", userID, "error", err)
	if o.deps.Refunds != nil {
		if qerr := o.deps.Refunds.EnqueueRefund(ctx, req); qerr != nil {
			o.logger.Error("Failed to enqueue refund", "task_id", taskID, "error", qerr)
		}
	}
}

// checkConcurrency enforces the active task cap: free users 1, subscribers 3
func (o *Orchestrator) checkConcurrency(ctx context.Context, userID string) error {
	active, err := o.deps.Store.CountActiveByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to count active tasks: %w", err)
	}

	limit := o.opts.FreeConcurrency
	if o.deps.Subscriptions != nil {
		paid, err := o.deps.Subscriptions.HasActive(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to read subscription: %w", err)
		}
		if paid {
			limit = o.opts.PaidConcurrency
		}
	}

	if active >= limit {
		return fmt.Errorf("%w (%d). Please wait for current tasks to complete.", ErrConcurrencyLimit, limit)
	}
	return nil
}

// Query polls the vendor for a task owned by userID and returns the refreshed task.
// Terminal tasks are returned as stored.
func (o *Orchestrator) Query(ctx context.Context, userID, taskID string) (*models.AITask, error) {
	if taskID == "" {
		return nil, ErrInvalidParams
	}

	task, err := o.deps.Store.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, storage.ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	if task.TaskID == "" {
		return nil, ErrTaskNotFound
	}
	if task.UserID != userID {
		return nil, ErrNoPermission
	}
	if task.Status.IsTerminal() {
		return task, nil
	}

	provider, err := o.deps.Providers.Get(task.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, task.Provider)
	}

	result, err := provider.Query(ctx, providers.QueryParams{
		TaskID:    task.TaskID,
		MediaType: task.MediaType,
		Model:     o.providerModelFor(ctx, task),
	})
	if err != nil {
		return nil, err
	}
	if result == nil || result.Status == "" {
		return nil, fmt.Errorf("query ai task failed: empty status from %s", task.Provider)
	}

	return o.finalize(ctx, task, provider, result)
}

// providerModelFor returns the model id the task was started with. Tasks
// created before snapshots existed resolve it from the current config.
func (o *Orchestrator) providerModelFor(ctx context.Context, task *models.AITask) string {
	if task.ProviderModelIDSnapshot != "" {
		return task.ProviderModelIDSnapshot
	}
	if task.Model == "" {
		return ""
	}
	cfg, err := o.deps.Models.Get(ctx, task.Model)
	if err != nil {
		return task.Model
	}
	if id := o.deps.Models.Resolve(cfg, task.Provider); id != "" {
		return id
	}
	return task.Model
}

// NotifyResult is the acknowledgement returned to a vendor webhook
type NotifyResult struct {
	Received bool   `json:"received"`
	Message  string `json:"message,omitempty"`
}

// Notify folds a vendor webhook into the task it refers to. Unknown and
// already finished tasks are acknowledged without changes.
func (o *Orchestrator) Notify(ctx context.Context, providerName string, body []byte) (*NotifyResult, error) {
	provider, err := o.deps.Providers.Get(providerName)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, providerName)
	}

	result, err := provider.ParseCallback(body)
	if err != nil {
		return nil, err
	}
	if result.TaskID == "" {
		return nil, providers.ErrMissingTaskID
	}

	task, err := o.deps.Store.GetByProviderTaskID(ctx, providerName, result.TaskID)
	if err != nil {
		if errors.Is(err, storage.ErrTaskNotFound) {
			o.logger.Warn("Callback for unknown task", "provider", providerName, "provider_task_id", result.TaskID)
			return &NotifyResult{Received: true, Message: "task not found"}, nil
		}
		return nil, err
	}
	if task.Status.IsTerminal() {
		return &NotifyResult{Received: true, Message: "already completed"}, nil
	}

	if _, err := o.finalize(ctx, task, provider, result); err != nil {
		// Deleted while the report was being processed
		if errors.Is(err, storage.ErrTaskNotFound) {
			return &NotifyResult{Received: true, Message: "task not found"}, nil
		}
		return nil, err
	}
	return &NotifyResult{Received: true}, nil
}

// Delete removes the stored media of a task and soft-deletes it
func (o *Orchestrator) Delete(ctx context.Context, userID, taskID string) error {
	if taskID == "" {
		return ErrInvalidParams
	}

	task, err := o.deps.Store.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, storage.ErrTaskNotFound) {
			return ErrTaskNotOwned
		}
		return err
	}
	if task.UserID != userID {
		return ErrTaskNotOwned
	}

	if keys := task.ResultAssets.Keys(); len(keys) > 0 && o.deps.Uploader != nil {
		if err := o.deps.Uploader.Delete(ctx, keys...); err != nil {
			o.logger.Warn("Asset cleanup failed, scheduling retry", "task_id", task.ID, "error", err)
			o.scheduleCleanup(ctx, task.ID, keys)
		}
	}

	deleted, err := o.deps.Store.SoftDelete(ctx, task.ID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrTaskNotOwned
	}

	o.logger.Info("Task deleted", "task_id", task.ID, "user_id", userID)
	return nil
}

func (o *Orchestrator) scheduleCleanup(ctx context.Context, taskID string, keys []string) {
	if o.deps.Cleanup == nil {
		return
	}
	if err := o.deps.Cleanup.EnqueueCleanup(ctx, CleanupRequest{TaskID: taskID, Keys: keys}); err != nil {
		o.logger.Error("Failed to enqueue asset cleanup", "task_id", taskID, "error", err)
	}
}

// ListRequest selects a page of a user's tasks
type ListRequest struct {
	MediaType models.MediaType
	Page      int
	Limit     int
}

// MaxListLimit caps the page size of List
const MaxListLimit = 100

// List returns a page of the user's tasks, newest first
func (o *Orchestrator) List(ctx context.Context, userID string, req ListRequest) (*storage.TaskListResult, error) {
	if req.MediaType != "" && !req.MediaType.IsValid() {
		return nil, ErrInvalidMediaType
	}
	if req.Limit > MaxListLimit {
		req.Limit = MaxListLimit
	}
	return o.deps.Store.ListByUser(ctx, storage.TaskListFilter{
		UserID:    userID,
		MediaType: req.MediaType,
		Page:      req.Page,
		Limit:     req.Limit,
	})
}
