package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"media_gateway/internal/models"
)

const aiTaskColumns = `
	id, user_id, media_type, provider, model, provider_model_id_snapshot,
	prompt, scene, options, status, progress, task_id, task_info, task_result,
	result_assets, cost_credits, credit_id, expires_at, created_at, updated_at,
	deleted_at`

// pgUniqueViolation is the SQLSTATE for unique_violation
const pgUniqueViolation = "23505"

// AITaskRepository persists AI tasks
type AITaskRepository struct {
	db *DB
}

// NewAITaskRepository creates a new AI task repository
func NewAITaskRepository(db *DB) *AITaskRepository {
	return &AITaskRepository{db: db}
}

// Create inserts a new task
func (r *AITaskRepository) Create(ctx context.Context, task *models.AITask) error {
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	query := `
		INSERT INTO ai_tasks (` + aiTaskColumns + `)
		VALUES (
			:id, :user_id, :media_type, :provider, :model, :provider_model_id_snapshot,
			:prompt, :scene, :options, :status, :progress, :task_id, :task_info, :task_result,
			:result_assets, :cost_credits, :credit_id, :expires_at, :created_at, :updated_at,
			:deleted_at
		)
	`

	if _, err := r.db.conn.NamedExecContext(ctx, query, task); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return ErrDuplicateTask
		}
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

// GetByID retrieves a live (not soft-deleted) task by its local id
func (r *AITaskRepository) GetByID(ctx context.Context, id string) (*models.AITask, error) {
	var task models.AITask
	query := `SELECT ` + aiTaskColumns + ` FROM ai_tasks WHERE id = $1 AND deleted_at IS NULL`

	if err := r.db.conn.GetContext(ctx, &task, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return &task, nil
}

// GetByProviderTaskID retrieves a live task by the vendor's task id
func (r *AITaskRepository) GetByProviderTaskID(ctx context.Context, provider, taskID string) (*models.AITask, error) {
	var task models.AITask
	query := `
		SELECT ` + aiTaskColumns + `
		FROM ai_tasks
		WHERE provider = $1 AND task_id = $2 AND deleted_at IS NULL
	`

	if err := r.db.conn.GetContext(ctx, &task, query, provider, taskID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task by provider task id: %w", err)
	}

	return &task, nil
}

// ApplyUpdate writes u only if the stored status may move to u.Status.
// It reports whether the row was updated; a terminal row never matches.
func (r *AITaskRepository) ApplyUpdate(ctx context.Context, id string, u models.TaskUpdate) (bool, error) {
	from := models.PredecessorsOf(u.Status)
	if len(from) == 0 {
		return false, fmt.Errorf("invalid target status %q", u.Status)
	}
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	query := `
		UPDATE ai_tasks SET
			status = $1,
			progress = $2,
			task_info = $3,
			task_result = $4,
			result_assets = $5,
			expires_at = $6,
			updated_at = $7
		WHERE id = $8 AND status = ANY($9) AND deleted_at IS NULL
	`

	res, err := r.db.conn.ExecContext(ctx, query,
		u.Status, u.Progress, u.TaskInfo, u.TaskResult, u.ResultAssets, u.ExpiresAt,
		time.Now().UTC(), id, pq.Array(allowed),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update task: %w", err)
	}

	return rowsAffected(res)
}

// Expire moves a success task past its expiry to expired and drops its assets
func (r *AITaskRepository) Expire(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		UPDATE ai_tasks SET status = $1, result_assets = NULL, updated_at = $2
		WHERE id = $3 AND status = $4 AND expires_at < $2
	`

	res, err := r.db.conn.ExecContext(ctx, query,
		models.TaskStatusExpired, now, id, models.TaskStatusSuccess,
	)
	if err != nil {
		return false, fmt.Errorf("failed to expire task: %w", err)
	}

	return rowsAffected(res)
}

// CountActiveByUser counts the user's pending and processing tasks
func (r *AITaskRepository) CountActiveByUser(ctx context.Context, userID string) (int, error) {
	query := `
		SELECT COUNT(*) FROM ai_tasks
		WHERE user_id = $1 AND status IN ($2, $3) AND deleted_at IS NULL
	`

	var count int
	err := r.db.conn.GetContext(ctx, &count, query, userID, models.TaskStatusPending, models.TaskStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to count active tasks: %w", err)
	}

	return count, nil
}

// SoftDelete marks the task deleted if it belongs to userID
func (r *AITaskRepository) SoftDelete(ctx context.Context, id, userID string) (bool, error) {
	query := `
		UPDATE ai_tasks SET deleted_at = $1, updated_at = $1
		WHERE id = $2 AND user_id = $3 AND deleted_at IS NULL
	`

	res, err := r.db.conn.ExecContext(ctx, query, time.Now().UTC(), id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete task: %w", err)
	}

	return rowsAffected(res)
}

// TaskListFilter contains filter parameters for listing a user's tasks
type TaskListFilter struct {
	UserID    string
	MediaType models.MediaType
	Page      int
	Limit     int
}

// TaskListResult contains paginated task list results
type TaskListResult struct {
	Tasks      []*models.AITask `json:"tasks"`
	TotalCount int              `json:"total"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
}

// ListByUser returns a user's live tasks, newest first
func (r *AITaskRepository) ListByUser(ctx context.Context, filter TaskListFilter) (*TaskListResult, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}

	whereClauses := []string{"user_id = $1", "deleted_at IS NULL"}
	args := []interface{}{filter.UserID}
	argCount := 2

	if filter.MediaType != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("media_type = $%d", argCount))
		args = append(args, filter.MediaType)
		argCount++
	}

	whereClause := "WHERE " + strings.Join(whereClauses, " AND ")

	var totalCount int
	countQuery := "SELECT COUNT(*) FROM ai_tasks " + whereClause
	if err := r.db.conn.GetContext(ctx, &totalCount, countQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}

	dataQuery := fmt.Sprintf(`
		SELECT %s
		FROM ai_tasks
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, aiTaskColumns, whereClause, argCount, argCount+1)
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	tasks := []*models.AITask{}
	if err := r.db.conn.SelectContext(ctx, &tasks, dataQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	return &TaskListResult{
		Tasks:      tasks,
		TotalCount: totalCount,
		Page:       filter.Page,
		Limit:      filter.Limit,
	}, nil
}

// ListExpired returns up to limit success tasks whose assets expired before now.
// Soft-deleted tasks are included so their storage is reclaimed too.
func (r *AITaskRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.AITask, error) {
	query := `
		SELECT ` + aiTaskColumns + `
		FROM ai_tasks
		WHERE status = $1 AND expires_at < $2
		ORDER BY expires_at
		LIMIT $3
	`

	var tasks []*models.AITask
	if err := r.db.conn.SelectContext(ctx, &tasks, query, models.TaskStatusSuccess, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list expired tasks: %w", err)
	}

	return tasks, nil
}

func rowsAffected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}
