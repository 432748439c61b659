package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taskboard/internal/models"
)

type userRequest struct {
	Email     string  `json:"email"`
	Name      string  `json:"name"`
	DailyRate float64 `json:"daily_rate"`
}

// handleListUsers returns every known identity record.
func (s *Server) handleListUsers(c *gin.Context) {
	users, err := s.store.ListUsers(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"users": users})
}

// handleCreateUser registers an identity record so assignee emails resolve.
func (s *Server) handleCreateUser(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, err)
		return
	}

	user, err := s.store.CreateUser(c.Request.Context(), models.User{
		Email:     req.Email,
		Name:      req.Name,
		DailyRate: req.DailyRate,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"user": user})
}

// handleListNotifications returns a user's notifications, newest first.
func (s *Server) handleListNotifications(c *gin.Context) {
	userID, ok := parseID(c, "id")
	if !ok {
		return
	}

	notifications, err := s.store.ListNotifications(c.Request.Context(), userID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"notifications": notifications})
}
