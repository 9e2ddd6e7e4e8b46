package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lwald/semgrade/internal/model"
	"github.com/lwald/semgrade/internal/pkg/response"
	"github.com/lwald/semgrade/internal/service"
)

type IngestHandler struct {
	ingest *service.IngestService
}

func NewIngestHandler(ingest *service.IngestService) *IngestHandler {
	return &IngestHandler{ingest: ingest}
}

// Push accepts a clustering batch from the segmentation side.
func (h *IngestHandler) Push(c *gin.Context) {
	var batch model.ClusterBatch
	if err := c.ShouldBindJSON(&batch); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid", "invalid batch payload")
		return
	}
	run, err := h.ingest.IngestBatch(c.Request.Context(), c.Param("id"), &batch)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, run)
}

// Trigger asks the segmentation service to recluster the exercise.
func (h *IngestHandler) Trigger(c *gin.Context) {
	run, err := h.ingest.TriggerClustering(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, run)
}

func (h *IngestHandler) Runs(c *gin.Context) {
	runs, err := h.ingest.ListRuns(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, runs)
}
