package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lwald/semgrade/internal/pkg/response"
	"github.com/lwald/semgrade/internal/service"
)

type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type loginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid", "invalid request")
		return
	}
	if req.Name == "" || req.Password == "" {
		response.Error(c, http.StatusBadRequest, "invalid", "name and password required")
		return
	}
	token, user, err := h.auth.Login(c.Request.Context(), req.Name, req.Password)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"token": token,
		"user":  user,
	})
}
