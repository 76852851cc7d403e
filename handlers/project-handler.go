package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Misbahrahman/tasks/models"
	"github.com/Misbahrahman/tasks/services"
)

type ProjectHandler struct {
	ProjectService *services.ProjectService
}

func NewProjectHandler(projectService *services.ProjectService) *ProjectHandler {
	return &ProjectHandler{ProjectService: projectService}
}

type createProjectRequest struct {
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Category    models.ProjectCategory `json:"category"`
	Team        []string               `json:"team"`
	DueDate     string                 `json:"dueDate"`
}

func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorID(r)
	if !ok {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	team, err := parseIDList(req.Team)
	if err != nil {
		http.Error(w, "Invalid team member ID format", http.StatusBadRequest)
		return
	}

	project := models.Project{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Team:        team,
	}
	if req.DueDate != "" {
		due, err := time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			http.Error(w, "dueDate must be a date in YYYY-MM-DD form", http.StatusBadRequest)
			return
		}
		project.DueDate = &due
	}

	id, err := h.ProjectService.CreateProject(r.Context(), project, actor)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"id": id.Hex()})
}

// GetProjects lists projects newest-first. With ?scope=mine only projects
// whose team contains the caller are returned.
func (h *ProjectHandler) GetProjects(w http.ResponseWriter, r *http.Request) {
	member := primitive.NilObjectID
	if r.URL.Query().Get("scope") == "mine" {
		actor, ok := actorID(r)
		if !ok {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		member = actor
	}

	projects, err := h.ProjectService.ListProjects(r.Context(), member)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(projects)
}

func (h *ProjectHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "projectID")
	if err != nil {
		http.Error(w, "Invalid project ID format", http.StatusBadRequest)
		return
	}

	project, err := h.ProjectService.GetProject(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(project)
}

// updateProjectRequest uses pointer fields so an absent field is skipped while
// a present empty one clears the stored value. An empty dueDate string removes
// the date.
type updateProjectRequest struct {
	Title       *string                 `json:"title"`
	Description *string                 `json:"description"`
	Category    *models.ProjectCategory `json:"category"`
	DueDate     *string                 `json:"dueDate"`
	Team        []string                `json:"team"`
}

func (h *ProjectHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "projectID")
	if err != nil {
		http.Error(w, "Invalid project ID format", http.StatusBadRequest)
		return
	}

	var req updateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	update := services.ProjectUpdate{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
	}

	if req.DueDate != nil {
		if *req.DueDate == "" {
			update.ClearDueDate = true
		} else {
			parsed, err := time.Parse("2006-01-02", *req.DueDate)
			if err != nil {
				http.Error(w, "dueDate must be a date in YYYY-MM-DD form", http.StatusBadRequest)
				return
			}
			update.DueDate = &parsed
		}
	}

	if req.Team != nil {
		update.Team, err = parseIDList(req.Team)
		if err != nil {
			http.Error(w, "Invalid team member ID format", http.StatusBadRequest)
			return
		}
	}

	if err := h.ProjectService.UpdateProject(r.Context(), id, update); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message": "Project updated"}`))
}

func (h *ProjectHandler) CloseProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "projectID")
	if err != nil {
		http.Error(w, "Invalid project ID format", http.StatusBadRequest)
		return
	}

	if err := h.ProjectService.CloseProject(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message": "Project closed"}`))
}

func (h *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "projectID")
	if err != nil {
		http.Error(w, "Invalid project ID format", http.StatusBadRequest)
		return
	}

	if err := h.ProjectService.DeleteProject(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message": "Project deleted"}`))
}

func pathID(r *http.Request, name string) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(mux.Vars(r)[name])
}

func parseIDList(raw []string) ([]primitive.ObjectID, error) {
	ids := make([]primitive.ObjectID, 0, len(raw))
	for _, s := range raw {
		id, err := primitive.ObjectIDFromHex(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
