package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Misbahrahman/tasks/logging"
	"github.com/Misbahrahman/tasks/models"
	"github.com/Misbahrahman/tasks/store"
)

// Board holds the status-bucketed, sorted task columns.
type Board struct {
	Todo       []models.Task `json:"todo"`
	InProgress []models.Task `json:"inProgress"`
	Done       []models.Task `json:"done"`
}

// BoardFilter scopes a board. Zero ids mean "all projects" and
// "all assignees" respectively.
type BoardFilter struct {
	ProjectID primitive.ObjectID
	Assignee  primitive.ObjectID
}

func (f BoardFilter) query() bson.M {
	filter := bson.M{}
	if !f.ProjectID.IsZero() {
		filter["projectId"] = f.ProjectID
	}
	if !f.Assignee.IsZero() {
		filter["assignees"] = f.Assignee
	}
	return filter
}

type TaskService struct {
	Tasks   store.Collection
	Metrics *MetricsService
}

func NewTaskService(tasks store.Collection, metrics *MetricsService) *TaskService {
	return &TaskService{Tasks: tasks, Metrics: metrics}
}

// CreateTask creates a task in the todo column with its CREATED history
// entry, then bumps the owning project's task counter.
func (s *TaskService) CreateTask(ctx context.Context, projectID primitive.ObjectID, task models.Task, creatorID primitive.ObjectID) (primitive.ObjectID, error) {
	if task.Title == "" {
		return primitive.NilObjectID, fmt.Errorf("task title is required")
	}
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}
	if !models.ValidTaskPriority(task.Priority) {
		return primitive.NilObjectID, fmt.Errorf("unknown task priority: %s", task.Priority)
	}

	now := time.Now()
	task.ID = primitive.NilObjectID
	task.ProjectID = projectID
	task.Status = models.StatusTodo
	task.Assignees = dedupeIDs(task.Assignees)
	task.Comments = []models.Comment{}
	task.History = []models.HistoryEntry{newHistoryEntry(models.HistoryCreated, "Task created", creatorID)}
	task.CreatedBy = creatorID
	task.CreatedAt = now
	task.UpdatedAt = now

	id, err := s.Tasks.InsertOne(ctx, task)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("failed to create task: %w", err)
	}

	if err := s.Metrics.TaskCreated(ctx, projectID); err != nil {
		logging.Logger.Errorf("Event ID: METRICS_DELTA_FAILED, Description: Create delta for project %s failed: %v", projectID.Hex(), err)
	}

	return id, nil
}

func (s *TaskService) GetTask(ctx context.Context, id primitive.ObjectID) (models.Task, error) {
	var task models.Task
	if err := s.Tasks.FindByID(ctx, id, &task); err != nil {
		return models.Task{}, err
	}
	return task, nil
}

// ChangeStatus moves a task to another column. Any column can move to any
// other; the history entry names both statuses, and the project counters
// shift when the move crosses the done boundary.
func (s *TaskService) ChangeStatus(ctx context.Context, id primitive.ObjectID, newStatus models.TaskStatus, actorID primitive.ObjectID) error {
	if !models.ValidTaskStatus(newStatus) {
		return fmt.Errorf("unknown task status: %s", newStatus)
	}

	task, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}
	oldStatus := task.Status
	if oldStatus == newStatus {
		return nil
	}

	entry := newHistoryEntry(models.HistoryStatusChanged,
		fmt.Sprintf("Status changed from %s to %s", oldStatus, newStatus), actorID)

	update := bson.M{
		"$set":  bson.M{"status": newStatus, "updatedAt": time.Now()},
		"$push": bson.M{"history": entry},
	}
	if err := s.Tasks.UpdateByID(ctx, id, update); err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	if err := s.Metrics.StatusChanged(ctx, task.ProjectID, oldStatus, newStatus); err != nil {
		logging.Logger.Errorf("Event ID: METRICS_DELTA_FAILED, Description: Status delta for project %s failed: %v", task.ProjectID.Hex(), err)
	}
	return nil
}

// taskUpdateFields fixes the field order for change descriptions, so the same
// update always produces the same history entry.
var taskUpdateFields = []string{"title", "description", "priority", "dueDate"}

// UpdateTask edits descriptive fields and appends one combined UPDATED entry
// naming each field that actually changed. Submitting the stored values
// appends nothing. Status and assignees have dedicated operations and are
// rejected here so their history types and metrics deltas cannot be skipped.
func (s *TaskService) UpdateTask(ctx context.Context, id primitive.ObjectID, updates map[string]interface{}, actorID primitive.ObjectID) error {
	for field := range updates {
		switch field {
		case "title", "description", "priority", "dueDate":
		case "status":
			return fmt.Errorf("status must be changed through the status operation")
		case "assignees":
			return fmt.Errorf("assignees must be changed through the assignees operation")
		default:
			return fmt.Errorf("field %s cannot be updated", field)
		}
	}

	task, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}

	set := bson.M{"updatedAt": time.Now()}
	var changes []string

	for _, field := range taskUpdateFields {
		raw, ok := updates[field]
		if !ok {
			continue
		}
		switch field {
		case "title":
			v, ok := raw.(string)
			if !ok {
				return fmt.Errorf("title must be a string")
			}
			if v == "" {
				return fmt.Errorf("task title is required")
			}
			if v != task.Title {
				changes = append(changes, fmt.Sprintf("title: %s → %s", task.Title, v))
			}
			set["title"] = v
		case "description":
			v, ok := raw.(string)
			if !ok {
				return fmt.Errorf("description must be a string")
			}
			if v != task.Description {
				changes = append(changes, fmt.Sprintf("description: %s → %s", task.Description, v))
			}
			set["description"] = v
		case "priority":
			v := models.TaskPriority(fmt.Sprintf("%v", raw))
			if !models.ValidTaskPriority(v) {
				return fmt.Errorf("unknown task priority: %s", v)
			}
			if v != task.Priority {
				changes = append(changes, fmt.Sprintf("priority: %s → %s", task.Priority, v))
			}
			set["priority"] = v
		case "dueDate":
			v, err := asDueDate(raw)
			if err != nil {
				return err
			}
			if !sameDate(task.DueDate, v) {
				changes = append(changes, fmt.Sprintf("dueDate: %s → %s", formatDate(task.DueDate), formatDate(v)))
			}
			if v == nil {
				set["dueDate"] = nil
			} else {
				set["dueDate"] = *v
			}
		}
	}

	update := bson.M{"$set": set}
	if len(changes) > 0 {
		entry := newHistoryEntry(models.HistoryUpdated, "Updated "+strings.Join(changes, ", "), actorID)
		update["$push"] = bson.M{"history": entry}
	}

	if err := s.Tasks.UpdateByID(ctx, id, update); err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

// UpdateAssignees replaces the assignee set and records who was added and
// removed. An unchanged set appends nothing.
func (s *TaskService) UpdateAssignees(ctx context.Context, id primitive.ObjectID, assignees []primitive.ObjectID, actorID primitive.ObjectID) error {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}

	assignees = dedupeIDs(assignees)
	added := idsMissingFrom(assignees, task.Assignees)
	removed := idsMissingFrom(task.Assignees, assignees)
	if len(added) == 0 && len(removed) == 0 {
		return nil
	}

	var description string
	if len(added) > 0 {
		description += fmt.Sprintf("Added assignees: %s ", joinIDs(added))
	}
	if len(removed) > 0 {
		description += fmt.Sprintf("Removed assignees: %s", joinIDs(removed))
	}

	entry := newHistoryEntry(models.HistoryAssigneesUpdated, strings.TrimSpace(description), actorID)
	update := bson.M{
		"$set":  bson.M{"assignees": assignees, "updatedAt": time.Now()},
		"$push": bson.M{"history": entry},
	}
	if err := s.Tasks.UpdateByID(ctx, id, update); err != nil {
		return fmt.Errorf("failed to update assignees: %w", err)
	}
	return nil
}

// AddComment appends a comment and its COMMENT_ADDED history entry.
func (s *TaskService) AddComment(ctx context.Context, id primitive.ObjectID, content string, actorID primitive.ObjectID) (models.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return models.Comment{}, fmt.Errorf("comment content is required")
	}

	comment := models.Comment{
		ID:        uuid.New().String(),
		Content:   content,
		CreatedBy: actorID,
		CreatedAt: time.Now(),
	}
	entry := newHistoryEntry(models.HistoryCommentAdded, "New comment added", actorID)

	update := bson.M{
		"$push": bson.M{"comments": comment, "history": entry},
		"$set":  bson.M{"updatedAt": time.Now()},
	}
	if err := s.Tasks.UpdateByID(ctx, id, update); err != nil {
		return models.Comment{}, fmt.Errorf("failed to add comment: %w", err)
	}
	return comment, nil
}

// DeleteTask appends the DELETED entry first, so an audit export taken just
// before removal still shows it, then deletes the task and decrements the
// project counters.
func (s *TaskService) DeleteTask(ctx context.Context, id primitive.ObjectID, actorID primitive.ObjectID) error {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}

	entry := newHistoryEntry(models.HistoryDeleted, "Task deleted", actorID)
	if err := s.Tasks.UpdateByID(ctx, id, bson.M{"$push": bson.M{"history": entry}}); err != nil {
		return fmt.Errorf("failed to record task deletion: %w", err)
	}

	if err := s.Tasks.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	if err := s.Metrics.TaskDeleted(ctx, task.ProjectID, task.Status); err != nil {
		logging.Logger.Errorf("Event ID: METRICS_DELTA_FAILED, Description: Delete delta for project %s failed: %v", task.ProjectID.Hex(), err)
	}
	return nil
}

// GetBoard returns a one-shot bucketed snapshot for the filter.
func (s *TaskService) GetBoard(ctx context.Context, filter BoardFilter) (Board, error) {
	var tasks []models.Task
	if err := s.Tasks.Find(ctx, filter.query(), &tasks); err != nil {
		return Board{}, fmt.Errorf("failed to fetch tasks: %w", err)
	}
	return BuildBoard(tasks), nil
}

// SubscribeBoard delivers a bucketed board now and after every change to a
// matching task. The caller owns the subscription lifecycle.
func (s *TaskService) SubscribeBoard(ctx context.Context, filter BoardFilter, fn func(Board)) (*store.Subscription, error) {
	return s.Tasks.Subscribe(ctx, filter.query(), func(docs []bson.Raw) {
		var tasks []models.Task
		if err := store.DecodeSnapshot(docs, &tasks); err != nil {
			logging.Logger.Errorf("Event ID: BOARD_SNAPSHOT_DECODE_FAILED, Description: %v", err)
			return
		}
		fn(BuildBoard(tasks))
	})
}

func (s *TaskService) ListProjectTasks(ctx context.Context, projectID primitive.ObjectID) ([]models.Task, error) {
	var tasks []models.Task
	if err := s.Tasks.Find(ctx, bson.M{"projectId": projectID}, &tasks); err != nil {
		return nil, fmt.Errorf("failed to fetch tasks: %w", err)
	}
	return tasks, nil
}

// BuildBoard partitions tasks into status buckets and sorts each bucket by
// priority (high before medium before low), then ascending due date with
// date-less tasks last. The sort is stable, so equal keys keep their input
// order and the same input always yields the same board.
func BuildBoard(tasks []models.Task) Board {
	var board Board
	for _, task := range tasks {
		switch task.Status {
		case models.StatusTodo:
			board.Todo = append(board.Todo, task)
		case models.StatusInProgress:
			board.InProgress = append(board.InProgress, task)
		case models.StatusDone:
			board.Done = append(board.Done, task)
		}
	}
	sortBucket(board.Todo)
	sortBucket(board.InProgress)
	sortBucket(board.Done)
	return board
}

func sortBucket(tasks []models.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		ri, rj := models.PriorityRank(tasks[i].Priority), models.PriorityRank(tasks[j].Priority)
		if ri != rj {
			return ri < rj
		}
		di, dj := tasks[i].DueDate, tasks[j].DueDate
		switch {
		case di == nil && dj == nil:
			return false
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return di.Before(*dj)
		}
	})
}

func newHistoryEntry(t models.HistoryType, description string, actorID primitive.ObjectID) models.HistoryEntry {
	return models.HistoryEntry{
		ID:          uuid.New().String(),
		Type:        t,
		Description: description,
		CreatedBy:   actorID,
		CreatedAt:   time.Now(),
	}
}

func asDueDate(raw interface{}) (*time.Time, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case *time.Time:
		return v, nil
	case time.Time:
		return &v, nil
	case string:
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return nil, fmt.Errorf("dueDate must be a date in YYYY-MM-DD form")
		}
		return &t, nil
	default:
		return nil, fmt.Errorf("dueDate must be a date")
	}
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "none"
	}
	return t.Format("2006-01-02")
}

func idsMissingFrom(ids, from []primitive.ObjectID) []primitive.ObjectID {
	var out []primitive.ObjectID
	for _, id := range ids {
		if !projectHasMember(from, id) {
			out = append(out, id)
		}
	}
	return out
}

func joinIDs(ids []primitive.ObjectID) string {
	hex := make([]string, len(ids))
	for i, id := range ids {
		hex[i] = id.Hex()
	}
	return strings.Join(hex, ", ")
}
