package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "inProgress"
	StatusDone       TaskStatus = "done"
)

func ValidTaskStatus(s TaskStatus) bool {
	return s == StatusTodo || s == StatusInProgress || s == StatusDone
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

func ValidTaskPriority(p TaskPriority) bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// PriorityRank orders priorities high < medium < low for board sorting.
func PriorityRank(p TaskPriority) int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

type Comment struct {
	ID        string             `bson:"id" json:"id"`
	Content   string             `bson:"content" json:"content"`
	CreatedBy primitive.ObjectID `bson:"createdBy" json:"createdBy"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

type HistoryType string

const (
	HistoryCreated          HistoryType = "CREATED"
	HistoryStatusChanged    HistoryType = "STATUS_CHANGED"
	HistoryUpdated          HistoryType = "UPDATED"
	HistoryCommentAdded     HistoryType = "COMMENT_ADDED"
	HistoryAssigneesUpdated HistoryType = "ASSIGNEES_UPDATED"
	HistoryDeleted          HistoryType = "DELETED"
)

// HistoryEntry is one immutable audit record on a task. Entries are only ever
// appended, never edited or removed.
type HistoryEntry struct {
	ID          string             `bson:"id" json:"id"`
	Type        HistoryType        `bson:"type" json:"type"`
	Description string             `bson:"description" json:"description"`
	CreatedBy   primitive.ObjectID `bson:"createdBy" json:"createdBy"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
}

type Task struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	ProjectID   primitive.ObjectID   `bson:"projectId" json:"projectId"`
	Title       string               `bson:"title" json:"title"`
	Description string               `bson:"description" json:"description"`
	Assignees   []primitive.ObjectID `bson:"assignees" json:"assignees"`
	Priority    TaskPriority         `bson:"priority" json:"priority"`
	DueDate     *time.Time           `bson:"dueDate,omitempty" json:"dueDate,omitempty"`
	Status      TaskStatus           `bson:"status" json:"status"`
	Comments    []Comment            `bson:"comments" json:"comments"`
	History     []HistoryEntry       `bson:"history" json:"history"`
	CreatedBy   primitive.ObjectID   `bson:"createdBy" json:"createdBy"`
	CreatedAt   time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time            `bson:"updatedAt" json:"updatedAt"`
}
