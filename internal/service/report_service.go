package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/lwald/semgrade/internal/model"
	appErr "github.com/lwald/semgrade/internal/pkg/errors"
	"github.com/lwald/semgrade/internal/repo"
)

// ReportService renders an exercise's clustering and conflict state as an
// HTML page for instructors. The report is built as markdown and converted,
// which keeps the template trivially diffable in tests.
type ReportService struct {
	exercises *repo.ExerciseRepo
	clusters  *ClusterService
	conflicts *ConflictService
	md        goldmark.Markdown
}

func NewReportService(exercises *repo.ExerciseRepo, clusters *ClusterService, conflicts *ConflictService) *ReportService {
	return &ReportService{
		exercises: exercises,
		clusters:  clusters,
		conflicts: conflicts,
		md:        goldmark.New(goldmark.WithExtensions(extension.Table)),
	}
}

func (s *ReportService) RenderHTML(ctx context.Context, user model.User, exerciseID string) ([]byte, error) {
	if !user.IsInstructor() {
		return nil, appErr.ErrForbidden
	}
	markdown, err := s.buildMarkdown(ctx, user, exerciseID)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := s.md.Convert([]byte(markdown), &out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func (s *ReportService) buildMarkdown(ctx context.Context, user model.User, exerciseID string) (string, error) {
	exercise, err := s.exercises.GetByID(ctx, exerciseID)
	if err != nil {
		return "", err
	}
	stats, err := s.clusters.Statistics(ctx, user, exerciseID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Assessment report: %s\n\n", exercise.Title)
	fmt.Fprintf(&b, "## Clusters (%d)\n\n", len(stats))
	if len(stats) > 0 {
		b.WriteString("| Cluster | Size | Automatic feedbacks | Disabled |\n")
		b.WriteString("| --- | --- | --- | --- |\n")
		for _, stat := range stats {
			fmt.Fprintf(&b, "| %s | %d | %d | %t |\n",
				shortID(stat.ClusterID), stat.ClusterSize, stat.NumberOfAutomaticFeedbacks, stat.Disabled)
		}
		b.WriteString("\n")
	}

	if model.SupportsAutomaticAssessment(exercise.AssessmentType) {
		conflicts, err := s.conflicts.ListOpenConflicts(ctx, user, exerciseID)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "## Open feedback conflicts (%d)\n\n", len(conflicts))
		for _, detail := range conflicts {
			fmt.Fprintf(&b, "- `%s`: %.1f credits vs %.1f credits (submissions %s / %s)\n",
				shortID(detail.Conflict.ID),
				detail.FirstFeedback.Credits, detail.SecondFeedback.Credits,
				shortID(detail.FirstSubmission), shortID(detail.SecondSubmission))
		}
	}
	return b.String(), nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
