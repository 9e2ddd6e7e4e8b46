package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/lwald/semgrade/internal/pkg/response"
	"github.com/lwald/semgrade/internal/service"
)

type ConflictHandler struct {
	conflicts *service.ConflictService
}

func NewConflictHandler(conflicts *service.ConflictService) *ConflictHandler {
	return &ConflictHandler{conflicts: conflicts}
}

func (h *ConflictHandler) List(c *gin.Context) {
	details, err := h.conflicts.ListOpenConflicts(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, details)
}

func (h *ConflictHandler) ConflictingSubmissions(c *gin.Context) {
	submissions, err := h.conflicts.ConflictingSubmissions(c.Request.Context(), currentUser(c), c.Param("id"), c.Param("fid"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, submissions)
}

func (h *ConflictHandler) Solve(c *gin.Context) {
	conflict, err := h.conflicts.Solve(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, conflict)
}
