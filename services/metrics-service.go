package services

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Misbahrahman/tasks/logging"
	"github.com/Misbahrahman/tasks/models"
	"github.com/Misbahrahman/tasks/store"
)

// metricsMaxRetries bounds the compare-and-swap loop. Each lost round means
// some other delta landed, so the retry count only ever approaches this bound
// under heavier write contention on one project than the app can produce.
const metricsMaxRetries = 32

// MetricsService keeps each project's task counters and derived progress in
// step with the task population by applying signed deltas per lifecycle
// event, instead of recounting the whole collection on every mutation.
//
// A plain read-modify-write here loses updates when two task mutations hit
// the same project concurrently, so every write is conditional on the
// counters still holding the values the delta was computed from; a miss
// rereads and retries. Counters and progress always land in the same write.
type MetricsService struct {
	Projects store.Collection
}

func NewMetricsService(projects store.Collection) *MetricsService {
	return &MetricsService{Projects: projects}
}

func (s *MetricsService) TaskCreated(ctx context.Context, projectID primitive.ObjectID) error {
	return s.apply(ctx, projectID, 1, 0)
}

func (s *MetricsService) TaskDeleted(ctx context.Context, projectID primitive.ObjectID, previousStatus models.TaskStatus) error {
	completedDelta := 0
	if previousStatus == models.StatusDone {
		completedDelta = -1
	}
	return s.apply(ctx, projectID, -1, completedDelta)
}

// StatusChanged applies a delta only when the transition crosses the done
// boundary; todo <-> inProgress moves leave the counters alone.
func (s *MetricsService) StatusChanged(ctx context.Context, projectID primitive.ObjectID, from, to models.TaskStatus) error {
	switch {
	case from != models.StatusDone && to == models.StatusDone:
		return s.apply(ctx, projectID, 0, 1)
	case from == models.StatusDone && to != models.StatusDone:
		return s.apply(ctx, projectID, 0, -1)
	default:
		return nil
	}
}

func (s *MetricsService) apply(ctx context.Context, projectID primitive.ObjectID, totalDelta, completedDelta int) error {
	for attempt := 0; attempt < metricsMaxRetries; attempt++ {
		var project models.Project
		err := s.Projects.FindByID(ctx, projectID, &project)
		if errors.Is(err, store.ErrNotFound) {
			// The project vanished underneath the task mutation; there is
			// nothing left to keep consistent.
			logging.Logger.Warnf("Event ID: METRICS_PROJECT_GONE, Description: Metrics delta dropped, project %s no longer exists", projectID.Hex())
			return nil
		}
		if err != nil {
			return err
		}

		observed := project.Metrics

		next := models.ProjectMetrics{
			TotalTasks:     observed.TotalTasks + totalDelta,
			CompletedTasks: observed.CompletedTasks + completedDelta,
		}
		if next.TotalTasks < 0 {
			next.TotalTasks = 0
		}
		if next.CompletedTasks < 0 {
			next.CompletedTasks = 0
		}
		if next.CompletedTasks > next.TotalTasks {
			next.CompletedTasks = next.TotalTasks
		}

		// The filter on the observed counters turns this update into a CAS:
		// it matches nothing if another delta landed since the read.
		filter := bson.M{
			"_id":                    projectID,
			"metrics.totalTasks":     observed.TotalTasks,
			"metrics.completedTasks": observed.CompletedTasks,
		}
		update := bson.M{"$set": bson.M{
			"metrics.totalTasks":     next.TotalTasks,
			"metrics.completedTasks": next.CompletedTasks,
			"progress":               next.Progress(),
			"updatedAt":              time.Now(),
		}}

		matched, err := s.Projects.UpdateMatched(ctx, filter, update)
		if err != nil {
			return err
		}
		if matched > 0 {
			return nil
		}
	}

	logging.Logger.Errorf("Event ID: METRICS_CAS_EXHAUSTED, Description: Metrics delta for project %s lost %d consecutive races", projectID.Hex(), metricsMaxRetries)
	return store.ErrConflict
}
