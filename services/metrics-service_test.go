package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Misbahrahman/tasks/models"
	"github.com/Misbahrahman/tasks/store"
)

func newMetricsEnv(t *testing.T) (*MetricsService, *store.MemoryCollection, primitive.ObjectID) {
	t.Helper()

	projects := store.NewMemoryCollection()
	svc := NewMetricsService(projects)

	id, err := projects.InsertOne(context.Background(), models.Project{
		Title:    "Website Redesign",
		Category: models.CategoryDesign,
		Status:   models.ProjectActive,
	})
	require.NoError(t, err)
	return svc, projects, id
}

func projectMetrics(t *testing.T, projects *store.MemoryCollection, id primitive.ObjectID) models.Project {
	t.Helper()
	var p models.Project
	require.NoError(t, projects.FindByID(context.Background(), id, &p))
	return p
}

func TestMetricsLifecycle(t *testing.T) {
	svc, projects, id := newMetricsEnv(t)
	ctx := context.Background()

	p := projectMetrics(t, projects, id)
	assert.Equal(t, 0, p.Metrics.TotalTasks)
	assert.Equal(t, 0, p.Metrics.CompletedTasks)
	assert.Equal(t, 0, p.Progress)

	require.NoError(t, svc.TaskCreated(ctx, id))
	p = projectMetrics(t, projects, id)
	assert.Equal(t, 1, p.Metrics.TotalTasks)
	assert.Equal(t, 0, p.Metrics.CompletedTasks)
	assert.Equal(t, 0, p.Progress)

	require.NoError(t, svc.StatusChanged(ctx, id, models.StatusTodo, models.StatusDone))
	p = projectMetrics(t, projects, id)
	assert.Equal(t, 1, p.Metrics.CompletedTasks)
	assert.Equal(t, 100, p.Progress)
}

func TestMetricsDeleteCompletedTask(t *testing.T) {
	svc, projects, id := newMetricsEnv(t)
	ctx := context.Background()

	// T1 done, T2 todo.
	require.NoError(t, svc.TaskCreated(ctx, id))
	require.NoError(t, svc.TaskCreated(ctx, id))
	require.NoError(t, svc.StatusChanged(ctx, id, models.StatusTodo, models.StatusDone))

	require.NoError(t, svc.TaskDeleted(ctx, id, models.StatusDone))

	p := projectMetrics(t, projects, id)
	assert.Equal(t, 1, p.Metrics.TotalTasks)
	assert.Equal(t, 0, p.Metrics.CompletedTasks)
	assert.Equal(t, 0, p.Progress)
}

func TestMetricsNoOpTransitions(t *testing.T) {
	svc, projects, id := newMetricsEnv(t)
	ctx := context.Background()

	require.NoError(t, svc.TaskCreated(ctx, id))
	before := projectMetrics(t, projects, id)

	require.NoError(t, svc.StatusChanged(ctx, id, models.StatusTodo, models.StatusInProgress))
	require.NoError(t, svc.StatusChanged(ctx, id, models.StatusInProgress, models.StatusTodo))

	after := projectMetrics(t, projects, id)
	assert.Equal(t, before.Metrics, after.Metrics)
}

func TestMetricsProgressRounding(t *testing.T) {
	svc, projects, id := newMetricsEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.TaskCreated(ctx, id))
	}
	require.NoError(t, svc.StatusChanged(ctx, id, models.StatusTodo, models.StatusDone))

	p := projectMetrics(t, projects, id)
	assert.Equal(t, 33, p.Progress, "1/3 rounds to 33")

	require.NoError(t, svc.StatusChanged(ctx, id, models.StatusTodo, models.StatusDone))
	p = projectMetrics(t, projects, id)
	assert.Equal(t, 67, p.Progress, "2/3 rounds to 67")
}

func TestMetricsClampedAtZero(t *testing.T) {
	svc, projects, id := newMetricsEnv(t)
	ctx := context.Background()

	// Out-of-done on a project that never saw a completion must not go
	// negative.
	require.NoError(t, svc.TaskCreated(ctx, id))
	require.NoError(t, svc.StatusChanged(ctx, id, models.StatusDone, models.StatusTodo))

	p := projectMetrics(t, projects, id)
	assert.Equal(t, 0, p.Metrics.CompletedTasks)
	assert.GreaterOrEqual(t, p.Metrics.TotalTasks, p.Metrics.CompletedTasks)
}

func TestMetricsMissingProjectIsDropped(t *testing.T) {
	svc, _, _ := newMetricsEnv(t)
	assert.NoError(t, svc.TaskCreated(context.Background(), primitive.NewObjectID()))
}

// Two independent moves into done starting from the same baseline must both
// count. A plain read-modify-write loses one of them; the conditional write
// retries instead.
func TestMetricsConcurrentDeltasCompound(t *testing.T) {
	svc, projects, id := newMetricsEnv(t)
	ctx := context.Background()

	require.NoError(t, svc.TaskCreated(ctx, id))
	require.NoError(t, svc.TaskCreated(ctx, id))

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.StatusChanged(ctx, id, models.StatusTodo, models.StatusDone))
		}()
	}
	wg.Wait()

	p := projectMetrics(t, projects, id)
	assert.Equal(t, 2, p.Metrics.CompletedTasks)
	assert.Equal(t, 2, p.Metrics.TotalTasks)
	assert.Equal(t, 100, p.Progress)
}

func TestMetricsConcurrentMixedDeltas(t *testing.T) {
	svc, projects, id := newMetricsEnv(t)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.TaskCreated(ctx, id))
		}()
	}
	wg.Wait()

	for i := 0; i < n/2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.StatusChanged(ctx, id, models.StatusInProgress, models.StatusDone))
		}()
	}
	wg.Wait()

	p := projectMetrics(t, projects, id)
	assert.Equal(t, n, p.Metrics.TotalTasks)
	assert.Equal(t, n/2, p.Metrics.CompletedTasks)
	assert.Equal(t, 50, p.Progress)
}
