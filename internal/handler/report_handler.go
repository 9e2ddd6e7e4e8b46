package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lwald/semgrade/internal/service"
)

type ReportHandler struct {
	reports *service.ReportService
}

func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

func (h *ReportHandler) Get(c *gin.Context) {
	html, err := h.reports.RenderHTML(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}
