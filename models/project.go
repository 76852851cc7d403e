package models

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ProjectCategory string

const (
	CategoryDevelopment ProjectCategory = "development"
	CategoryDesign      ProjectCategory = "design"
	CategoryMarketing   ProjectCategory = "marketing"
	CategoryResearch    ProjectCategory = "research"
)

func ValidProjectCategory(c ProjectCategory) bool {
	switch c {
	case CategoryDevelopment, CategoryDesign, CategoryMarketing, CategoryResearch:
		return true
	}
	return false
}

type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectCompleted ProjectStatus = "completed"
)

// ProjectMetrics carries the denormalized task counters for a project.
// CompletedTasks never exceeds TotalTasks and neither goes below zero.
type ProjectMetrics struct {
	TotalTasks     int `bson:"totalTasks" json:"totalTasks"`
	CompletedTasks int `bson:"completedTasks" json:"completedTasks"`
}

// Progress derives the integer completion percentage from the counters.
func (m ProjectMetrics) Progress() int {
	if m.TotalTasks <= 0 {
		return 0
	}
	return int(math.Round(float64(m.CompletedTasks) * 100 / float64(m.TotalTasks)))
}

type Project struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Title       string               `bson:"title" json:"title"`
	Description string               `bson:"description" json:"description"`
	Category    ProjectCategory      `bson:"category" json:"category"`
	Team        []primitive.ObjectID `bson:"team" json:"team"`
	Status      ProjectStatus        `bson:"status" json:"status"`
	DueDate     *time.Time           `bson:"dueDate,omitempty" json:"dueDate,omitempty"`
	Metrics     ProjectMetrics       `bson:"metrics" json:"metrics"`
	Progress    int                  `bson:"progress" json:"progress"`
	CreatedBy   primitive.ObjectID   `bson:"createdBy" json:"createdBy"`
	CreatedAt   time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time            `bson:"updatedAt" json:"updatedAt"`
}

// HasMember reports whether the given user is on the project team.
func (p *Project) HasMember(userID primitive.ObjectID) bool {
	for _, id := range p.Team {
		if id == userID {
			return true
		}
	}
	return false
}
