package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/lwald/semgrade/internal/middleware"
)

type RouterDeps struct {
	Auth        *AuthHandler
	Courses     *CourseHandler
	Assessments *AssessmentHandler
	Clusters    *ClusterHandler
	Conflicts   *ConflictHandler
	Ingest      *IngestHandler
	Reports     *ReportHandler
	Files       *FileHandler
	JWTSecret   []byte
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/auth/login", deps.Auth.Login)

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))

	authGroup.POST("/exercises", deps.Courses.CreateExercise)
	authGroup.GET("/exercises/:id", deps.Courses.GetExercise)
	authGroup.POST("/participations/:id/submissions", deps.Courses.CreateSubmission)
	authGroup.POST("/submissions/:id/submit", deps.Courses.SubmitSubmission)
	authGroup.DELETE("/submissions/:id", deps.Courses.DeleteSubmission)

	authGroup.POST("/exercises/:id/assessment/lock", deps.Assessments.LockNext)
	authGroup.POST("/submissions/:id/lock", deps.Assessments.Lock)
	authGroup.GET("/submissions/:id/for-assessment", deps.Assessments.Get)
	authGroup.GET("/participations/:id/submission", deps.Assessments.Participation)
	authGroup.DELETE("/submissions/:id/assessment", deps.Assessments.Cancel)
	authGroup.PUT("/results/:id/feedback", deps.Assessments.Save)
	authGroup.POST("/results/:id/submit", deps.Assessments.Submit)

	authGroup.GET("/exercises/:id/cluster-statistics", deps.Clusters.Statistics)
	authGroup.PUT("/clusters/:id/disabled", deps.Clusters.SetDisabled)

	authGroup.GET("/exercises/:id/feedback-conflicts", deps.Conflicts.List)
	authGroup.GET("/submissions/:id/feedback/:fid/conflicting-submissions", deps.Conflicts.ConflictingSubmissions)
	authGroup.PUT("/conflicts/:id/solve", deps.Conflicts.Solve)

	authGroup.POST("/exercises/:id/clustering", deps.Ingest.Push)
	authGroup.POST("/exercises/:id/clustering/trigger", deps.Ingest.Trigger)
	authGroup.GET("/exercises/:id/clustering/runs", deps.Ingest.Runs)

	authGroup.GET("/exercises/:id/report", deps.Reports.Get)
	authGroup.GET("/files/*key", deps.Files.Get)
}
