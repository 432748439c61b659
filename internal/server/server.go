package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"taskboard/internal/auth"
	"taskboard/internal/board"
	"taskboard/internal/models"
	"taskboard/internal/notify"
	"taskboard/internal/storage/sqlite"
)

// Server provides the HTTP surface over the board engine.
type Server struct {
	engine    *gin.Engine
	store     *sqlite.Store
	core      *board.Engine
	projector *board.Projector
	notify    *notify.Dispatcher
	logger    *slog.Logger
}

// New constructs the HTTP server with routes and middleware configured.
func New(store *sqlite.Store, core *board.Engine, dispatcher *notify.Dispatcher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(identityMiddleware())

	srv := &Server{
		engine:    router,
		store:     store,
		core:      core,
		projector: board.NewProjector(),
		notify:    dispatcher,
		logger:    logger,
	}

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerRoutes wires all API handlers together.
func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	{
		api.GET("/healthz", s.handleHealth)

		projects := api.Group("/projects")
		{
			projects.GET("", s.handleListProjects)
			projects.POST("", s.handleCreateProject)
			projects.PUT(":id", s.handleUpdateProject)
			projects.DELETE(":id", s.handleDeleteProject)

			projects.GET(":id/board", s.handleBoardView)
			projects.POST(":id/drag", s.handleDrag)
			projects.POST(":id/sweep", s.handleSweep)

			projects.GET(":id/columns", s.handleListColumns)
			projects.POST(":id/columns", s.handleCreateColumn)
			projects.PUT(":id/columns/:colID", s.handleRenameColumn)
			projects.DELETE(":id/columns/:colID", s.handleDeleteColumn)

			projects.GET(":id/tasks", s.handleListTasks)
			projects.POST(":id/tasks", s.handleCreateTask)
			projects.PUT(":id/tasks/:taskID", s.handleEditTask)
			projects.DELETE(":id/tasks/:taskID", s.handleDeleteTask)
			projects.PUT(":id/tasks/:taskID/sprint", s.handleAssignSprint)
			projects.POST(":id/tasks/:taskID/backlogs/:backlogID", s.handleAttachBacklog)
			projects.DELETE(":id/tasks/:taskID/backlogs/:backlogID", s.handleDetachBacklog)

			projects.GET(":id/backlogs", s.handleListBacklogs)
			projects.POST(":id/backlogs", s.handleCreateBacklog)
			projects.PUT(":id/backlogs/:backlogID", s.handleUpdateBacklog)
			projects.DELETE(":id/backlogs/:backlogID", s.handleDeleteBacklog)

			projects.GET(":id/sprints", s.handleListSprints)
			projects.POST(":id/sprints", s.handleCreateSprint)
			projects.PUT(":id/sprints/:sprintID", s.handleUpdateSprint)
			projects.DELETE(":id/sprints/:sprintID", s.handleDeleteSprint)
		}

		users := api.Group("/users")
		{
			users.GET("", s.handleListUsers)
			users.POST("", s.handleCreateUser)
			users.GET(":id/notifications", s.handleListNotifications)
		}
	}

	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})
}

// identityMiddleware trusts the upstream authorizer's headers and attaches
// the acting identity to the request context. Authorization policy is not
// decided here.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := auth.Identity{
			Email: c.GetHeader("X-Actor-Email"),
			Name:  c.GetHeader("X-Actor-Name"),
		}
		if raw := c.GetHeader("X-Actor-Id"); raw != "" {
			if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
				id.ID = v
			}
		}
		if raw := c.GetHeader("X-Actor-Claims"); raw != "" {
			id.Claims = auth.NewClaims(strings.Split(raw, ",")...)
		}
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// handleHealth provides a basic readiness endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// parseID converts a path parameter to int64 with error handling.
func parseID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identifier"})
		return 0, false
	}
	return id, true
}

// respondError maps the core error taxonomy onto HTTP statuses and logs the
// failure.
func (s *Server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var consistency *models.ConsistencyError
	switch {
	case models.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrForbidden):
		status = http.StatusForbidden
	case errors.As(err, &consistency):
		status = http.StatusConflict
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// respondSuccess wraps a payload in a JSON envelope for consistency.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}

// withWarning attaches a partial-notification warning to a success payload.
func withWarning(payload gin.H, notifyErr *models.NotifyError) gin.H {
	if notifyErr != nil {
		payload["warning"] = notifyErr.Error()
	}
	return payload
}
