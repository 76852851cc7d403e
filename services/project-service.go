package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Misbahrahman/tasks/logging"
	"github.com/Misbahrahman/tasks/models"
	"github.com/Misbahrahman/tasks/store"
)

type ProjectService struct {
	Projects store.Collection
	Tasks    store.Collection
}

func NewProjectService(projects, tasks store.Collection) *ProjectService {
	return &ProjectService{Projects: projects, Tasks: tasks}
}

// CreateProject creates a project owned by the creator. The creator always
// ends up on the team, the counters start at zero and the status is active.
func (s *ProjectService) CreateProject(ctx context.Context, project models.Project, creatorID primitive.ObjectID) (primitive.ObjectID, error) {
	if project.Title == "" {
		return primitive.NilObjectID, fmt.Errorf("project title is required")
	}
	if !models.ValidProjectCategory(project.Category) {
		return primitive.NilObjectID, fmt.Errorf("unknown project category: %s", project.Category)
	}

	if !projectHasMember(project.Team, creatorID) {
		project.Team = append(project.Team, creatorID)
	}

	now := time.Now()
	project.ID = primitive.NilObjectID
	project.Status = models.ProjectActive
	project.Metrics = models.ProjectMetrics{}
	project.Progress = 0
	project.CreatedBy = creatorID
	project.CreatedAt = now
	project.UpdatedAt = now

	id, err := s.Projects.InsertOne(ctx, project)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("failed to create project: %w", err)
	}

	logging.Logger.Infof("Event ID: PROJECT_CREATED, Description: Project %s created by %s", id.Hex(), creatorID.Hex())
	return id, nil
}

// ListProjects returns a snapshot, newest-created-first. A zero member id
// means all projects; otherwise only projects whose team contains the member.
func (s *ProjectService) ListProjects(ctx context.Context, member primitive.ObjectID) ([]models.Project, error) {
	var projects []models.Project
	if err := s.Projects.Find(ctx, scopeFilter(member), &projects); err != nil {
		return nil, fmt.Errorf("failed to fetch projects: %w", err)
	}
	sortProjectsNewestFirst(projects)
	return projects, nil
}

// SubscribeProjects delivers a full replacement list, newest-created-first,
// now and after every change. The caller owns the subscription lifecycle.
func (s *ProjectService) SubscribeProjects(ctx context.Context, member primitive.ObjectID, fn func([]models.Project)) (*store.Subscription, error) {
	return s.Projects.Subscribe(ctx, scopeFilter(member), func(docs []bson.Raw) {
		var projects []models.Project
		if err := store.DecodeSnapshot(docs, &projects); err != nil {
			logging.Logger.Errorf("Event ID: PROJECT_SNAPSHOT_DECODE_FAILED, Description: %v", err)
			return
		}
		sortProjectsNewestFirst(projects)
		fn(projects)
	})
}

func (s *ProjectService) GetProject(ctx context.Context, id primitive.ObjectID) (models.Project, error) {
	var project models.Project
	if err := s.Projects.FindByID(ctx, id, &project); err != nil {
		return models.Project{}, err
	}
	return project, nil
}

// ProjectUpdate carries the fields to change. Nil pointers leave the stored
// value alone, so a present-but-empty description clears it; ClearDueDate
// removes the date. A nil Team is skipped.
type ProjectUpdate struct {
	Title        *string
	Description  *string
	Category     *models.ProjectCategory
	DueDate      *time.Time
	ClearDueDate bool
	Team         []primitive.ObjectID
}

// UpdateProject edits descriptive fields. Metrics and status have dedicated
// paths and cannot be touched here.
func (s *ProjectService) UpdateProject(ctx context.Context, id primitive.ObjectID, update ProjectUpdate) error {
	set := bson.M{"updatedAt": time.Now()}
	if update.Title != nil {
		if *update.Title == "" {
			return fmt.Errorf("project title is required")
		}
		set["title"] = *update.Title
	}
	if update.Description != nil {
		set["description"] = *update.Description
	}
	if update.Category != nil {
		if !models.ValidProjectCategory(*update.Category) {
			return fmt.Errorf("unknown project category: %s", *update.Category)
		}
		set["category"] = *update.Category
	}
	switch {
	case update.ClearDueDate:
		set["dueDate"] = nil
	case update.DueDate != nil:
		set["dueDate"] = *update.DueDate
	}
	if update.Team != nil {
		set["team"] = dedupeIDs(update.Team)
	}

	return s.Projects.UpdateByID(ctx, id, bson.M{"$set": set})
}

// CloseProject marks the project completed. The transition is one-way and
// leaves the metrics untouched.
func (s *ProjectService) CloseProject(ctx context.Context, id primitive.ObjectID) error {
	return s.Projects.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"status":    models.ProjectCompleted,
		"updatedAt": time.Now(),
	}})
}

// DeleteProject removes the project and all of its tasks, so no task is left
// pointing at a project id that no longer resolves.
func (s *ProjectService) DeleteProject(ctx context.Context, id primitive.ObjectID) error {
	deleted, err := s.Tasks.DeleteMatched(ctx, bson.M{"projectId": id})
	if err != nil {
		return fmt.Errorf("failed to delete project tasks: %w", err)
	}

	if err := s.Projects.DeleteByID(ctx, id); err != nil {
		return err
	}

	logging.Logger.Infof("Event ID: PROJECT_DELETED, Description: Project %s deleted along with %d tasks", id.Hex(), deleted)
	return nil
}

func scopeFilter(member primitive.ObjectID) bson.M {
	if member.IsZero() {
		return bson.M{}
	}
	// Equality on the array-valued team field means "team contains member".
	return bson.M{"team": member}
}

func sortProjectsNewestFirst(projects []models.Project) {
	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})
}

func projectHasMember(team []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, member := range team {
		if member == id {
			return true
		}
	}
	return false
}

func dedupeIDs(ids []primitive.ObjectID) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
