package service

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lwald/semgrade/internal/clustercache"
	"github.com/lwald/semgrade/internal/model"
	"github.com/lwald/semgrade/internal/pkg/timeutil"
	"github.com/lwald/semgrade/internal/repo"
)

type testEnv struct {
	subSeq      int64
	exercises   *repo.ExerciseRepo
	submissions *repo.SubmissionRepo
	results     *repo.ResultRepo
	blocks      *repo.TextBlockRepo
	clusters    *repo.TextClusterRepo
	feedbacks   *repo.FeedbackRepo
	conflicts   *repo.ConflictRepo
	ingestRuns  *repo.IngestRunRepo
	cache       *clustercache.Reader

	suggestions *SuggestionService
	conflictSvc *ConflictService
	assessments *AssessmentService
	clusterSvc  *ClusterService
	ingest      *IngestService
	courses     *CourseService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := repo.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, repo.ApplyMigrations(db))
	t.Cleanup(func() { _ = db.Close() })

	env := &testEnv{
		exercises:   repo.NewExerciseRepo(db),
		submissions: repo.NewSubmissionRepo(db),
		results:     repo.NewResultRepo(db),
		blocks:      repo.NewTextBlockRepo(db),
		clusters:    repo.NewTextClusterRepo(db),
		feedbacks:   repo.NewFeedbackRepo(db),
		conflicts:   repo.NewConflictRepo(db),
		ingestRuns:  repo.NewIngestRunRepo(db),
	}
	env.cache = clustercache.NewReader(env.clusters, 64, time.Minute)
	env.suggestions = NewSuggestionService(env.blocks, env.feedbacks, env.submissions, env.results, env.cache)
	env.conflictSvc = NewConflictService(env.feedbacks, env.blocks, env.conflicts, env.exercises, env.submissions, env.cache, 1.0)
	env.assessments = NewAssessmentService(db, env.submissions, env.results, env.blocks, env.feedbacks, env.suggestions, env.conflictSvc)
	env.clusterSvc = NewClusterService(env.clusters, env.feedbacks, env.exercises, env.cache)
	env.ingest = NewIngestService(db, env.exercises, env.submissions, env.ingestRuns, nil, env.cache, nil)
	env.courses = NewCourseService(db, env.exercises, env.submissions, env.blocks, env.cache)
	return env
}

func tutor(id string) model.User {
	return model.User{ID: id, Name: id, Role: model.RoleTutor}
}

func instructor(id string) model.User {
	return model.User{ID: id, Name: id, Role: model.RoleInstructor}
}

func mustExercise(t *testing.T, env *testEnv, assessmentType string) *model.Exercise {
	t.Helper()
	exercise := &model.Exercise{
		ID:             uuid.NewString(),
		Title:          "essay question",
		AssessmentType: assessmentType,
		MaxPoints:      10,
		Ctime:          timeutil.NowUnix(),
	}
	require.NoError(t, env.exercises.Create(context.Background(), exercise))
	return exercise
}

func mustSubmission(t *testing.T, env *testEnv, exerciseID, participationID string) *model.Submission {
	t.Helper()
	// Distinct ctimes keep the oldest-first lock order deterministic even
	// when fixtures are created within the same second.
	env.subSeq++
	submission := &model.Submission{
		ID:              uuid.NewString(),
		ExerciseID:      exerciseID,
		ParticipationID: participationID,
		Text:            strings.Repeat("lorem ipsum ", 6),
		Submitted:       true,
		Ctime:           timeutil.NowUnix() + env.subSeq,
	}
	require.NoError(t, env.submissions.Create(context.Background(), submission))
	return submission
}

// pairBatch builds a batch with one block per submission, spanning [0,15),
// clustered together at distance 0.1.
func pairBatch(a, b *model.Submission) *model.ClusterBatch {
	return &model.ClusterBatch{
		Segments: []model.BatchSegment{
			{ID: "seg-a", SubmissionID: a.ID, Text: a.Text[0:15], StartIndex: 0, EndIndex: 15},
			{ID: "seg-b", SubmissionID: b.ID, Text: b.Text[0:15], StartIndex: 0, EndIndex: 15},
		},
		Clusters: []model.BatchCluster{
			{
				MemberSegmentIDs: []string{"seg-a", "seg-b"},
				DistanceMatrix: model.DistanceMatrix{
					{0, 0.1},
					{0.1, 0},
				},
			},
		},
	}
}

// clusteredPair ingests a two-submission cluster and returns both submissions
// with their block ids.
func clusteredPair(t *testing.T, env *testEnv, exerciseID string) (a, b *model.Submission, blockA, blockB string) {
	t.Helper()
	a = mustSubmission(t, env, exerciseID, "participation-a")
	b = mustSubmission(t, env, exerciseID, "participation-b")
	_, err := env.ingest.IngestBatch(context.Background(), exerciseID, pairBatch(a, b))
	require.NoError(t, err)
	return a, b, model.ComputeTextBlockID(a.ID, 0, 15), model.ComputeTextBlockID(b.ID, 0, 15)
}
