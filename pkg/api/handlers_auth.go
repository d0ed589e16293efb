// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/luxfi/flashbid/pkg/auth"
	"github.com/luxfi/flashbid/pkg/log"
	"github.com/luxfi/flashbid/pkg/model"
	"github.com/luxfi/flashbid/pkg/store"
)

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Username string `json:"username" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type userResponse struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Weight    string    `json:"weight"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserResponse(u *model.User) userResponse {
	return userResponse{
		UserID:    u.UserID,
		Email:     u.Email,
		Username:  u.Username,
		Weight:    u.Weight.String(),
		Status:    u.Status,
		CreatedAt: u.CreatedAt,
	}
}

// handleRegister creates a user with a bcrypt hash and a random weight.
func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		detail(c, http.StatusServiceUnavailable, "Service temporarily unavailable")
		return
	}

	user := &model.User{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
		Weight:       auth.RandomWeight(),
		Status:       model.UserActive,
	}
	if err := s.db.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			detail(c, http.StatusBadRequest, "Email already registered")
			return
		}
		s.log.Error("register failed", log.Error(err))
		detail(c, http.StatusServiceUnavailable, "Service temporarily unavailable")
		return
	}

	c.JSON(http.StatusCreated, newUserResponse(user))
}

// handleLogin exchanges credentials for a bearer token.
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.auth.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		authError(c, err)
		return
	}

	token, expiresAt, err := s.auth.IssueToken(user)
	if err != nil {
		s.log.Error("token issue failed", log.Error(err))
		detail(c, http.StatusServiceUnavailable, "Service temporarily unavailable")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   int(time.Until(expiresAt).Seconds()),
	})
}

// handleMe returns the authenticated user.
func (s *Server) handleMe(c *gin.Context) {
	c.JSON(http.StatusOK, newUserResponse(currentUser(c)))
}
