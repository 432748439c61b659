package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taskboard/internal/board"
)

type dragRequest struct {
	Active board.DragItem `json:"active"`
	Over   board.DragItem `json:"over"`
}

// handleBoardView returns the filtered per-column task lists for a project.
// Filters arrive as query parameters: backlog, sprint, user, priority.
func (s *Server) handleBoardView(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}

	snap, err := s.core.Snapshot(c.Request.Context(), projectID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	filters := board.Filters{
		Backlog:  c.Query("backlog"),
		Sprint:   c.Query("sprint"),
		User:     c.Query("user"),
		Priority: c.Query("priority"),
	}

	view := s.projector.Project(snap.Columns, snap.Tasks, filters)
	respondSuccess(c, http.StatusOK, gin.H{
		"columns": snap.Columns,
		"board":   view,
	})
}

// handleDrag applies a drag gesture: task reorder, cross-column move, or
// column reorder.
func (s *Server) handleDrag(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req dragRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, err)
		return
	}

	if err := s.core.Drag(c.Request.Context(), projectID, req.Active, req.Over); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "applied"})
}

// handleSweep triggers the rollover sweep for one project.
func (s *Server) handleSweep(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}

	migrated, notifyErr, err := s.core.RunSweep(c.Request.Context(), projectID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, withWarning(gin.H{"migrated": migrated}, notifyErr))
}
