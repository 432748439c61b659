package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"taskboard/internal/models"
)

type backlogRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// handleListBacklogs returns a project's backlogs.
func (s *Server) handleListBacklogs(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}

	snap, err := s.core.Snapshot(c.Request.Context(), projectID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"backlogs": snap.Backlogs})
}

// handleCreateBacklog adds an empty backlog.
func (s *Server) handleCreateBacklog(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req backlogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, err)
		return
	}

	b, err := s.core.CreateBacklog(c.Request.Context(), projectID, req.Name, req.Description)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"backlog": b})
}

// handleUpdateBacklog edits a backlog's name and description.
func (s *Server) handleUpdateBacklog(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}
	backlogID, ok := parseID(c, "backlogID")
	if !ok {
		return
	}

	var req backlogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, err)
		return
	}

	b, err := s.core.UpdateBacklog(c.Request.Context(), projectID, backlogID, req.Name, req.Description)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"backlog": b})
}

// handleDeleteBacklog removes a backlog, detaching its tasks first.
func (s *Server) handleDeleteBacklog(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}
	backlogID, ok := parseID(c, "backlogID")
	if !ok {
		return
	}

	if err := s.core.DeleteBacklog(c.Request.Context(), projectID, backlogID); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

type sprintRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
}

func (r sprintRequest) toDraft() models.Sprint {
	return models.Sprint{
		Name:        r.Name,
		Description: r.Description,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
	}
}

// handleListSprints returns a project's sprints ordered by start date.
func (s *Server) handleListSprints(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}

	snap, err := s.core.Snapshot(c.Request.Context(), projectID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"sprints": snap.Sprints})
}

// handleCreateSprint adds a sprint with validated name and date range.
func (s *Server) handleCreateSprint(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req sprintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, err)
		return
	}

	sp, err := s.core.CreateSprint(c.Request.Context(), projectID, req.toDraft())
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"sprint": sp})
}

// handleUpdateSprint edits a sprint's name, description and dates.
func (s *Server) handleUpdateSprint(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}
	sprintID, ok := parseID(c, "sprintID")
	if !ok {
		return
	}

	var req sprintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, err)
		return
	}

	sp, err := s.core.UpdateSprint(c.Request.Context(), projectID, sprintID, req.toDraft())
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"sprint": sp})
}

// handleDeleteSprint removes a sprint, detaching its tasks first.
func (s *Server) handleDeleteSprint(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}
	sprintID, ok := parseID(c, "sprintID")
	if !ok {
		return
	}

	if err := s.core.DeleteSprint(c.Request.Context(), projectID, sprintID); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}
