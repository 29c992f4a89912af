package httpapi

import (
	"context"
	"net/http"

	"media_gateway/internal/auth"
	"media_gateway/internal/config"
	"media_gateway/internal/logging"
	"media_gateway/internal/middleware"
	"media_gateway/internal/modelconfig"
	"media_gateway/internal/models"
	"media_gateway/internal/notifications"
	"media_gateway/internal/ratelimit"
	"media_gateway/internal/storage"
	"media_gateway/internal/sweep"
	"media_gateway/internal/tasks"
	"media_gateway/internal/utils"
)

// TaskService is the task lifecycle behind the /api/ai routes
type TaskService interface {
	Generate(ctx context.Context, userID string, req tasks.GenerateRequest) (*models.AITask, error)
	Query(ctx context.Context, userID, taskID string) (*models.AITask, error)
	Notify(ctx context.Context, provider string, body []byte) (*tasks.NotifyResult, error)
	Retry(ctx context.Context, userID, taskID string) (*models.AITask, error)
	Delete(ctx context.Context, userID, taskID string) error
	List(ctx context.Context, userID string, req tasks.ListRequest) (*storage.TaskListResult, error)
}

// ModelConfigService lists and edits the model catalogue
type ModelConfigService interface {
	ListEnabled(ctx context.Context) ([]*models.ModelConfig, error)
	ListAll(ctx context.Context, showAll bool) ([]*models.ModelConfig, error)
	Update(ctx context.Context, id string, req modelconfig.UpdateRequest) (*models.ModelConfig, error)
}

// NotificationService is the read side of the notification sink
type NotificationService interface {
	List(ctx context.Context, userID string, page, limit int) (*notifications.Page, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) error
}

// Sweeper expires one batch of tasks
type Sweeper interface {
	RunOnce(ctx context.Context) (*sweep.Result, error)
}

// HealthCheck reports whether one backing service is reachable
type HealthCheck func(ctx context.Context) error

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	Tasks         TaskService
	Models        ModelConfigService
	Notifications NotificationService
	Sweeper       Sweeper
	RateLimit     ratelimit.Limiter
	CallbackLog   logging.CallbackRecorder
	Health        map[string]HealthCheck
}

type handlers struct {
	deps   *Dependencies
	logger *utils.Logger
}

// NewRouter builds the HTTP handler for every route
func NewRouter(cfg *config.Config, deps *Dependencies) http.Handler {
	if deps.RateLimit == nil {
		deps.RateLimit = ratelimit.NewNoopLimiter()
	}
	if deps.CallbackLog == nil {
		deps.CallbackLog = logging.NoopCallbackRecorder{}
	}

	mux := http.NewServeMux()
	registerRoutes(mux, &handlers{deps: deps, logger: utils.NewLogger("httpapi")}, cfg)
	return middleware.Recover(mux)
}

func registerRoutes(mux *http.ServeMux, h *handlers, cfg *config.Config) {
	user := middleware.RequireUser(cfg.JWTSecret)
	admin := func(next http.HandlerFunc) http.Handler {
		return middleware.Chain(next, user, middleware.RequireRole(auth.RoleAdmin))
	}
	authed := func(next http.HandlerFunc) http.Handler {
		return user(next)
	}
	limited := func(next http.HandlerFunc) http.Handler {
		return middleware.Chain(next, user, middleware.RateLimit(h.deps.RateLimit, "generate", cfg.GenerateRateLimit))
	}

	// Task lifecycle
	mux.Handle("POST /api/ai/generate", limited(h.generate))
	mux.Handle("POST /api/ai/query", authed(h.query))
	mux.Handle("POST /api/ai/task/{id}/retry", limited(h.retry))
	mux.Handle("DELETE /api/ai/task/{id}", authed(h.deleteTask))
	mux.Handle("GET /api/ai/tasks", authed(h.listTasks))

	// Vendor webhooks - public
	mux.HandleFunc("POST /api/ai/notify/{provider}", h.notify)

	// Model catalogue
	mux.HandleFunc("GET /api/models", h.listModels)
	mux.Handle("GET /api/admin/model-config", admin(h.adminListModels))
	mux.Handle("PUT /api/admin/model-config", admin(h.adminUpdateModel))

	// Notifications
	mux.Handle("GET /api/notifications", authed(h.listNotifications))
	mux.Handle("PUT /api/notifications", authed(h.markAllNotificationsRead))
	mux.Handle("PUT /api/notifications/{id}/read", authed(h.markNotificationRead))

	// Scheduler
	mux.Handle("GET /api/cron/ai-tasks/cleanup", middleware.RequireCronSecret(cfg.CronSecret)(http.HandlerFunc(h.cronCleanup)))

	mux.HandleFunc("GET /health", h.health)
}
