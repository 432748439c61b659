package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type columnRequest struct {
	Name string `json:"name"`
}

// handleListColumns returns a project's columns ordered left to right.
func (s *Server) handleListColumns(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}

	snap, err := s.core.Snapshot(c.Request.Context(), projectID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"columns": snap.Columns})
}

// handleCreateColumn adds a new lane at the right edge of the board.
func (s *Server) handleCreateColumn(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req columnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, err)
		return
	}

	col, err := s.core.CreateColumn(c.Request.Context(), projectID, req.Name)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"column": col})
}

// handleRenameColumn renames a lane, carrying its tasks along.
func (s *Server) handleRenameColumn(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}
	columnID, ok := parseID(c, "colID")
	if !ok {
		return
	}

	var req columnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, err)
		return
	}

	col, err := s.core.RenameColumn(c.Request.Context(), projectID, columnID, req.Name)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"column": col})
}

// handleDeleteColumn removes a lane. A non-empty lane requires the cascade
// query flag, which deletes its tasks with it.
func (s *Server) handleDeleteColumn(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}
	columnID, ok := parseID(c, "colID")
	if !ok {
		return
	}

	cascade := c.Query("cascade") == "true"
	if err := s.core.DeleteColumn(c.Request.Context(), projectID, columnID, cascade); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}
