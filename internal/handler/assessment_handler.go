package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lwald/semgrade/internal/pkg/response"
	"github.com/lwald/semgrade/internal/service"
)

type AssessmentHandler struct {
	assessments *service.AssessmentService
}

func NewAssessmentHandler(assessments *service.AssessmentService) *AssessmentHandler {
	return &AssessmentHandler{assessments: assessments}
}

func correctionRound(c *gin.Context) (int, bool) {
	raw := c.DefaultQuery("correction_round", "0")
	round, err := strconv.Atoi(raw)
	if err != nil || round < 0 {
		response.Error(c, http.StatusBadRequest, "invalid", "correction_round must be a non-negative integer")
		return 0, false
	}
	return round, true
}

// LockNext locks the oldest unassessed submission of the exercise for the
// caller and returns it with blocks and adopted suggestions.
func (h *AssessmentHandler) LockNext(c *gin.Context) {
	round, ok := correctionRound(c)
	if !ok {
		return
	}
	bundle, err := h.assessments.LockNext(c.Request.Context(), currentUser(c), c.Param("id"), round)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, bundle)
}

func (h *AssessmentHandler) Lock(c *gin.Context) {
	round, ok := correctionRound(c)
	if !ok {
		return
	}
	bundle, err := h.assessments.Lock(c.Request.Context(), currentUser(c), c.Param("id"), round)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, bundle)
}

func (h *AssessmentHandler) Get(c *gin.Context) {
	round, ok := correctionRound(c)
	if !ok {
		return
	}
	bundle, err := h.assessments.GetForAssessment(c.Request.Context(), currentUser(c), c.Param("id"), round)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, bundle)
}

func (h *AssessmentHandler) Participation(c *gin.Context) {
	bundle, err := h.assessments.GetParticipationSubmission(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, bundle)
}

// Cancel releases the open assessment of a submission for a round.
func (h *AssessmentHandler) Cancel(c *gin.Context) {
	round, ok := correctionRound(c)
	if !ok {
		return
	}
	if err := h.assessments.CancelBySubmission(c.Request.Context(), currentUser(c), c.Param("id"), round); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *AssessmentHandler) Save(c *gin.Context) {
	var req service.SaveFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid", "invalid request")
		return
	}
	bundle, err := h.assessments.Save(c.Request.Context(), currentUser(c), c.Param("id"), &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, bundle)
}

func (h *AssessmentHandler) Submit(c *gin.Context) {
	var req service.SaveFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid", "invalid request")
		return
	}
	bundle, err := h.assessments.Submit(c.Request.Context(), currentUser(c), c.Param("id"), &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, bundle)
}
