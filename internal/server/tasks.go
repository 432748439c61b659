package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"taskboard/internal/models"
)

type taskRequest struct {
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	Priority       string           `json:"priority"`
	Status         string           `json:"status"`
	AssignedEmails []string         `json:"assigned_emails"`
	SprintID       *int64           `json:"sprint_id"`
	StartDate      *time.Time       `json:"start_date"`
	EndDate        *time.Time       `json:"end_date"`
	Subtasks       []models.Subtask `json:"subtasks"`
}

func (r taskRequest) toDraft() models.Task {
	return models.Task{
		Title:          r.Title,
		Description:    r.Description,
		Priority:       r.Priority,
		Status:         r.Status,
		AssignedEmails: r.AssignedEmails,
		SprintID:       r.SprintID,
		StartDate:      r.StartDate,
		EndDate:        r.EndDate,
		Subtasks:       r.Subtasks,
	}
}

// handleListTasks fetches tasks for a project.
func (s *Server) handleListTasks(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}

	snap, err := s.core.Snapshot(c.Request.Context(), projectID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"tasks": snap.Tasks})
}

// handleCreateTask inserts a new task into a board column.
func (s *Server) handleCreateTask(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, err)
		return
	}

	task, notifyErr, err := s.core.CreateTask(c.Request.Context(), projectID, req.toDraft())
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, withWarning(gin.H{"task": task}, notifyErr))
}

// handleEditTask applies a full edit to an existing task.
func (s *Server) handleEditTask(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}
	taskID, ok := parseID(c, "taskID")
	if !ok {
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, err)
		return
	}

	task, notifyErr, err := s.core.EditTask(c.Request.Context(), projectID, taskID, req.toDraft())
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, withWarning(gin.H{"task": task}, notifyErr))
}

// handleDeleteTask removes a task and unlinks it everywhere.
func (s *Server) handleDeleteTask(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}
	taskID, ok := parseID(c, "taskID")
	if !ok {
		return
	}

	if err := s.core.DeleteTask(c.Request.Context(), projectID, taskID); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

type sprintAssignRequest struct {
	SprintID *int64 `json:"sprint_id"`
}

// handleAssignSprint moves a task into a sprint or out of any sprint.
func (s *Server) handleAssignSprint(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}
	taskID, ok := parseID(c, "taskID")
	if !ok {
		return
	}

	var req sprintAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, err)
		return
	}

	if err := s.core.AssignTaskToSprint(c.Request.Context(), projectID, taskID, req.SprintID); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "assigned"})
}

// handleAttachBacklog links a task into a backlog.
func (s *Server) handleAttachBacklog(c *gin.Context) {
	s.linkBacklog(c, true)
}

// handleDetachBacklog removes a task's backlog link.
func (s *Server) handleDetachBacklog(c *gin.Context) {
	s.linkBacklog(c, false)
}

func (s *Server) linkBacklog(c *gin.Context, attach bool) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}
	taskID, ok := parseID(c, "taskID")
	if !ok {
		return
	}
	backlogID, ok := parseID(c, "backlogID")
	if !ok {
		return
	}

	var err error
	if attach {
		err = s.core.AttachTaskToBacklog(c.Request.Context(), projectID, taskID, backlogID)
	} else {
		err = s.core.DetachTaskFromBacklog(c.Request.Context(), projectID, taskID, backlogID)
	}
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "linked"})
}
