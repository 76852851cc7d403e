package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Misbahrahman/tasks/models"
	"github.com/Misbahrahman/tasks/store"
)

type projectEnv struct {
	projects *store.MemoryCollection
	tasks    *store.MemoryCollection
	svc      *ProjectService
	actor    primitive.ObjectID
}

func newProjectEnv(t *testing.T) *projectEnv {
	t.Helper()
	projects := store.NewMemoryCollection()
	tasks := store.NewMemoryCollection()
	return &projectEnv{
		projects: projects,
		tasks:    tasks,
		svc:      NewProjectService(projects, tasks),
		actor:    primitive.NewObjectID(),
	}
}

func (e *projectEnv) insertProject(t *testing.T, title string, createdAt time.Time, team ...primitive.ObjectID) primitive.ObjectID {
	t.Helper()
	id, err := e.projects.InsertOne(context.Background(), models.Project{
		Title:     title,
		Category:  models.CategoryDevelopment,
		Status:    models.ProjectActive,
		Team:      team,
		CreatedAt: createdAt,
	})
	require.NoError(t, err)
	return id
}

func TestCreateProjectDefaults(t *testing.T) {
	env := newProjectEnv(t)
	ctx := context.Background()

	teammate := primitive.NewObjectID()
	id, err := env.svc.CreateProject(ctx, models.Project{
		Title:    "Mobile App",
		Category: models.CategoryDevelopment,
		Team:     []primitive.ObjectID{teammate},
	}, env.actor)
	require.NoError(t, err)

	project, err := env.svc.GetProject(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, models.ProjectActive, project.Status)
	assert.Equal(t, models.ProjectMetrics{}, project.Metrics)
	assert.Equal(t, 0, project.Progress)
	assert.Equal(t, env.actor, project.CreatedBy)
	assert.Contains(t, project.Team, teammate)
	assert.Contains(t, project.Team, env.actor, "creator is forced onto the team")
}

func TestCreateProjectCreatorNotDuplicatedOnTeam(t *testing.T) {
	env := newProjectEnv(t)

	id, err := env.svc.CreateProject(context.Background(), models.Project{
		Title:    "Mobile App",
		Category: models.CategoryDevelopment,
		Team:     []primitive.ObjectID{env.actor},
	}, env.actor)
	require.NoError(t, err)

	project, err := env.svc.GetProject(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{env.actor}, project.Team)
}

func TestCreateProjectValidation(t *testing.T) {
	env := newProjectEnv(t)

	_, err := env.svc.CreateProject(context.Background(), models.Project{Category: models.CategoryDesign}, env.actor)
	assert.Error(t, err, "title is required")

	_, err = env.svc.CreateProject(context.Background(), models.Project{Title: "X", Category: "gardening"}, env.actor)
	assert.Error(t, err, "category must be known")
}

func TestListProjectsNewestFirstAndScoped(t *testing.T) {
	env := newProjectEnv(t)
	ctx := context.Background()

	member := primitive.NewObjectID()
	base := time.Date(2024, 11, 1, 9, 0, 0, 0, time.UTC)

	env.insertProject(t, "oldest", base, member)
	env.insertProject(t, "newest", base.Add(2*time.Hour), member)
	env.insertProject(t, "middle", base.Add(time.Hour))

	all, err := env.svc.ListProjects(ctx, primitive.NilObjectID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "newest", all[0].Title)
	assert.Equal(t, "middle", all[1].Title)
	assert.Equal(t, "oldest", all[2].Title)

	mine, err := env.svc.ListProjects(ctx, member)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "newest", mine[0].Title)
	assert.Equal(t, "oldest", mine[1].Title)
}

func TestSubscribeProjectsDeliversReplacementLists(t *testing.T) {
	env := newProjectEnv(t)
	ctx := context.Background()

	member := primitive.NewObjectID()
	base := time.Date(2024, 11, 1, 9, 0, 0, 0, time.UTC)
	env.insertProject(t, "first", base, member)

	var lists [][]models.Project
	sub, err := env.svc.SubscribeProjects(ctx, member, func(projects []models.Project) {
		lists = append(lists, projects)
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.Len(t, lists, 1, "initial snapshot arrives on subscribe")
	require.Len(t, lists[0], 1)
	assert.Equal(t, "first", lists[0][0].Title)

	env.insertProject(t, "second", base.Add(time.Hour), member)
	env.insertProject(t, "unrelated", base.Add(2*time.Hour))

	latest := lists[len(lists)-1]
	require.Len(t, latest, 2, "projects outside the member scope stay invisible")
	assert.Equal(t, "second", latest[0].Title)
	assert.Equal(t, "first", latest[1].Title)
}

func TestUpdateProject(t *testing.T) {
	env := newProjectEnv(t)
	ctx := context.Background()

	id := env.insertProject(t, "Mobile App", time.Now())
	title := "Mobile App v2"
	description := "Second iteration"
	category := models.CategoryMarketing
	due := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	require.NoError(t, env.svc.UpdateProject(ctx, id, ProjectUpdate{
		Title:       &title,
		Description: &description,
		Category:    &category,
		DueDate:     &due,
		Team:        []primitive.ObjectID{env.actor, env.actor},
	}))

	project, err := env.svc.GetProject(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Mobile App v2", project.Title)
	assert.Equal(t, "Second iteration", project.Description)
	assert.Equal(t, models.CategoryMarketing, project.Category)
	require.NotNil(t, project.DueDate)
	assert.True(t, due.Equal(*project.DueDate))
	assert.Equal(t, []primitive.ObjectID{env.actor}, project.Team, "team is deduplicated")
}

func TestUpdateProjectClearsAndSkipsFields(t *testing.T) {
	env := newProjectEnv(t)
	ctx := context.Background()

	id := env.insertProject(t, "Mobile App", time.Now())
	description := "First iteration"
	due := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, env.svc.UpdateProject(ctx, id, ProjectUpdate{Description: &description, DueDate: &due}))

	// Absent fields are skipped; a present empty description and ClearDueDate
	// wipe the stored values.
	empty := ""
	require.NoError(t, env.svc.UpdateProject(ctx, id, ProjectUpdate{Description: &empty, ClearDueDate: true}))

	project, err := env.svc.GetProject(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Mobile App", project.Title, "absent title is untouched")
	assert.Empty(t, project.Description)
	assert.Nil(t, project.DueDate)
}

func TestUpdateProjectValidation(t *testing.T) {
	env := newProjectEnv(t)
	id := env.insertProject(t, "Mobile App", time.Now())

	bad := models.ProjectCategory("gardening")
	assert.Error(t, env.svc.UpdateProject(context.Background(), id, ProjectUpdate{Category: &bad}))

	empty := ""
	assert.Error(t, env.svc.UpdateProject(context.Background(), id, ProjectUpdate{Title: &empty}))
}

func TestCloseProject(t *testing.T) {
	env := newProjectEnv(t)
	ctx := context.Background()

	id := env.insertProject(t, "Mobile App", time.Now())
	require.NoError(t, env.svc.CloseProject(ctx, id))

	project, err := env.svc.GetProject(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectCompleted, project.Status)
}

func TestDeleteProjectCascadesToTasks(t *testing.T) {
	env := newProjectEnv(t)
	ctx := context.Background()

	id := env.insertProject(t, "Mobile App", time.Now())
	other := env.insertProject(t, "Website", time.Now())

	taskSvc := NewTaskService(env.tasks, NewMetricsService(env.projects))
	_, err := taskSvc.CreateTask(ctx, id, models.Task{Title: "Login screen"}, env.actor)
	require.NoError(t, err)
	_, err = taskSvc.CreateTask(ctx, id, models.Task{Title: "Signup screen"}, env.actor)
	require.NoError(t, err)
	kept, err := taskSvc.CreateTask(ctx, other, models.Task{Title: "Hero section"}, env.actor)
	require.NoError(t, err)

	require.NoError(t, env.svc.DeleteProject(ctx, id))

	_, err = env.svc.GetProject(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)

	orphans, err := taskSvc.ListProjectTasks(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, orphans, "tasks of the deleted project are gone")

	_, err = taskSvc.GetTask(ctx, kept)
	assert.NoError(t, err, "tasks of other projects survive")
}
