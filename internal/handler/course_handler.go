package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lwald/semgrade/internal/pkg/response"
	"github.com/lwald/semgrade/internal/service"
)

type CourseHandler struct {
	courses *service.CourseService
}

func NewCourseHandler(courses *service.CourseService) *CourseHandler {
	return &CourseHandler{courses: courses}
}

type createExerciseRequest struct {
	Title          string  `json:"title"`
	AssessmentType string  `json:"assessment_type"`
	MaxPoints      float64 `json:"max_points"`
}

func (h *CourseHandler) CreateExercise(c *gin.Context) {
	var req createExerciseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid", "invalid request")
		return
	}
	exercise, err := h.courses.CreateExercise(c.Request.Context(), currentUser(c), req.Title, req.AssessmentType, req.MaxPoints)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, exercise)
}

func (h *CourseHandler) GetExercise(c *gin.Context) {
	exercise, err := h.courses.GetExercise(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, exercise)
}

type createSubmissionRequest struct {
	ExerciseID string `json:"exercise_id"`
	Text       string `json:"text"`
}

func (h *CourseHandler) CreateSubmission(c *gin.Context) {
	var req createSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid", "invalid request")
		return
	}
	submission, err := h.courses.CreateSubmission(c.Request.Context(), req.ExerciseID, c.Param("id"), req.Text)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, submission)
}

func (h *CourseHandler) SubmitSubmission(c *gin.Context) {
	if err := h.courses.SubmitSubmission(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *CourseHandler) DeleteSubmission(c *gin.Context) {
	if err := h.courses.DeleteSubmission(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}
