package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lwald/semgrade/internal/pkg/response"
	"github.com/lwald/semgrade/internal/service"
)

type ClusterHandler struct {
	clusters *service.ClusterService
}

func NewClusterHandler(clusters *service.ClusterService) *ClusterHandler {
	return &ClusterHandler{clusters: clusters}
}

func (h *ClusterHandler) Statistics(c *gin.Context) {
	stats, err := h.clusters.Statistics(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, stats)
}

type setDisabledRequest struct {
	Disabled *bool `json:"disabled"`
}

func (h *ClusterHandler) SetDisabled(c *gin.Context) {
	var req setDisabledRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Disabled == nil {
		response.Error(c, http.StatusBadRequest, "invalid", "disabled flag required")
		return
	}
	if err := h.clusters.SetDisabled(c.Request.Context(), currentUser(c), c.Param("id"), *req.Disabled); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}
