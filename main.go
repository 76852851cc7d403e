package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Misbahrahman/tasks/handlers"
	"github.com/Misbahrahman/tasks/logging"
	"github.com/Misbahrahman/tasks/middleware"
	"github.com/Misbahrahman/tasks/services"
	"github.com/Misbahrahman/tasks/store"
)

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func newBackendBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		// Not-found and lost-CAS results are application outcomes, not
		// backend failures; they must not trip the circuit.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrConflict)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Logger.Infof("Event ID: CIRCUIT_BREAKER_STATE_CHANGE, Description: Circuit Breaker '%s' changed from '%s' to '%s'", name, from.String(), to.String())
		},
	})
}

func main() {
	logging.InitLogger()

	logging.Logger.Info("Event ID: SERVICE_START, Description: Starting tasks backend...")
	if err := godotenv.Load(".env"); err != nil {
		logging.Logger.Warnf("Event ID: ENV_LOAD_ERROR, Description: Error loading .env file: %v", err)
	}

	mongoURI := os.Getenv("MONGO_URI")
	mongoDBName := os.Getenv("MONGO_DB_NAME")
	if mongoDBName == "" {
		mongoDBName = "tasks_db"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		logging.Logger.Fatalf("Event ID: DB_CONNECTION_FAILED, Description: Database connection for MongoDB failed: %v", err)
	}
	defer client.Disconnect(context.Background())

	if err := client.Ping(ctx, nil); err != nil {
		logging.Logger.Fatalf("Event ID: DB_PING_FAILED, Description: MongoDB connection ping error: %v", err)
	}
	logging.Logger.Infof("Event ID: DB_CONNECTED, Description: Successfully connected to MongoDB at %s.", mongoURI)

	db := client.Database(mongoDBName)
	usersColl := store.NewBreakerCollection(store.NewMongoCollection(db.Collection("users")), newBackendBreaker("users-backend-cb"))
	projectsColl := store.NewBreakerCollection(store.NewMongoCollection(db.Collection("projects")), newBackendBreaker("projects-backend-cb"))
	tasksColl := store.NewBreakerCollection(store.NewMongoCollection(db.Collection("tasks")), newBackendBreaker("tasks-backend-cb"))

	blackList := map[string]bool{}
	if path := os.Getenv("PASSWORD_BLACKLIST_FILE"); path != "" {
		loaded, err := services.LoadBlackList(path)
		if err != nil {
			logging.Logger.Warnf("Event ID: BLACKLIST_LOAD_FAILED, Description: Could not load password blacklist from %s: %v", path, err)
		} else {
			blackList = loaded
		}
	}

	userService := services.NewUserService(usersColl, blackList, nil)
	metricsService := services.NewMetricsService(projectsColl)
	projectService := services.NewProjectService(projectsColl, tasksColl)
	taskService := services.NewTaskService(tasksColl, metricsService)

	authHandler := handlers.NewAuthHandler(userService)
	userHandler := handlers.NewUserHandler(userService)
	projectHandler := handlers.NewProjectHandler(projectService)
	taskHandler := handlers.NewTaskHandler(taskService)
	streamHandler := handlers.NewStreamHandler(taskService, projectService)

	r := mux.NewRouter()

	// Auth routes stay outside the JWT middleware.
	r.HandleFunc("/api/auth/register", authHandler.Register).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/verify", authHandler.VerifyEmail).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", authHandler.Login).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/signin-link", authHandler.SendSignInLink).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/signin-link/complete", authHandler.CompleteSignInWithLink).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/reset-password", authHandler.ResetPassword).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/reset-password/complete", authHandler.CompletePasswordReset).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.JWTAuth(userService.IsRevoked))

	api.HandleFunc("/auth/logout", authHandler.Logout).Methods(http.MethodPost)

	api.HandleFunc("/users", userHandler.GetAllUsers).Methods(http.MethodGet)
	api.HandleFunc("/users/me", userHandler.GetCurrentUser).Methods(http.MethodGet)
	api.HandleFunc("/users/me/password", userHandler.ChangePassword).Methods(http.MethodPost)
	api.HandleFunc("/users/{userID}", userHandler.GetUser).Methods(http.MethodGet)
	api.HandleFunc("/users/{userID}", userHandler.UpdateProfile).Methods(http.MethodPatch)

	api.HandleFunc("/projects", projectHandler.CreateProject).Methods(http.MethodPost)
	api.HandleFunc("/projects", projectHandler.GetProjects).Methods(http.MethodGet)
	api.HandleFunc("/projects/stream", streamHandler.StreamProjects).Methods(http.MethodGet)
	api.HandleFunc("/projects/{projectID}", projectHandler.GetProject).Methods(http.MethodGet)
	api.HandleFunc("/projects/{projectID}", projectHandler.UpdateProject).Methods(http.MethodPatch)
	api.HandleFunc("/projects/{projectID}/close", projectHandler.CloseProject).Methods(http.MethodPost)
	api.HandleFunc("/projects/{projectID}", projectHandler.DeleteProject).Methods(http.MethodDelete)

	api.HandleFunc("/tasks", taskHandler.CreateTask).Methods(http.MethodPost)
	api.HandleFunc("/tasks/board", taskHandler.GetBoard).Methods(http.MethodGet)
	api.HandleFunc("/tasks/board/stream", streamHandler.StreamBoard).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{taskID}", taskHandler.GetTask).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{taskID}/status", taskHandler.ChangeStatus).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{taskID}", taskHandler.UpdateTask).Methods(http.MethodPatch)
	api.HandleFunc("/tasks/{taskID}/assignees", taskHandler.UpdateAssignees).Methods(http.MethodPut)
	api.HandleFunc("/tasks/{taskID}/comments", taskHandler.AddComment).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{taskID}", taskHandler.DeleteTask).Methods(http.MethodDelete)

	corsRouter := enableCORS(r)

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080"
	}

	serverAddress := fmt.Sprintf(":%s", serverPort)
	logging.Logger.Infof("Event ID: SERVER_START_INFO, Description: Server running on http://localhost%s", serverAddress)

	if err := http.ListenAndServe(serverAddress, corsRouter); err != nil {
		logging.Logger.Fatalf("Event ID: SERVER_FATAL_ERROR, Description: Server failed to start: %v", err)
	}
}
