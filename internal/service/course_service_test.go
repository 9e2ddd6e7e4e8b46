package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lwald/semgrade/internal/model"
	appErr "github.com/lwald/semgrade/internal/pkg/errors"
)

func TestCreateExercise_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.courses.CreateExercise(ctx, tutor("tutor-1"), "essay", model.AssessmentTypeManual, 10)
	require.ErrorIs(t, err, appErr.ErrForbidden)

	_, err = env.courses.CreateExercise(ctx, instructor("boss"), "essay", "PSYCHIC", 10)
	require.True(t, appErr.IsInvalid(err))

	_, err = env.courses.CreateExercise(ctx, instructor("boss"), "", model.AssessmentTypeManual, 10)
	require.True(t, appErr.IsInvalid(err))

	exercise, err := env.courses.CreateExercise(ctx, instructor("boss"), "essay", model.AssessmentTypeSemiAutomatic, 10)
	require.NoError(t, err)
	got, err := env.courses.GetExercise(ctx, exercise.ID)
	require.NoError(t, err)
	require.Equal(t, "essay", got.Title)
}

func TestDeleteSubmission_ShrinksCluster(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exercise := mustExercise(t, env, model.AssessmentTypeSemiAutomatic)
	a := mustSubmission(t, env, exercise.ID, "participation-a")
	b := mustSubmission(t, env, exercise.ID, "participation-b")
	c := mustSubmission(t, env, exercise.ID, "participation-c")

	batch := &model.ClusterBatch{
		Segments: []model.BatchSegment{
			{ID: "seg-a", SubmissionID: a.ID, Text: a.Text[0:15], StartIndex: 0, EndIndex: 15},
			{ID: "seg-b", SubmissionID: b.ID, Text: b.Text[0:15], StartIndex: 0, EndIndex: 15},
			{ID: "seg-c", SubmissionID: c.ID, Text: c.Text[0:15], StartIndex: 0, EndIndex: 15},
		},
		Clusters: []model.BatchCluster{
			{
				MemberSegmentIDs: []string{"seg-a", "seg-b", "seg-c"},
				DistanceMatrix: model.DistanceMatrix{
					{0, 0.1, 0.2},
					{0.1, 0, 0.2},
					{0.2, 0.2, 0},
				},
			},
		},
	}
	_, err := env.ingest.IngestBatch(ctx, exercise.ID, batch)
	require.NoError(t, err)

	blockA := model.ComputeTextBlockID(a.ID, 0, 15)
	blockB := model.ComputeTextBlockID(b.ID, 0, 15)
	blockC := model.ComputeTextBlockID(c.ID, 0, 15)

	submitManual(t, env, tutor("tutor-1"), a.ID, blockA, 2)

	require.ErrorIs(t, env.courses.DeleteSubmission(ctx, tutor("tutor-1"), a.ID), appErr.ErrForbidden)
	require.NoError(t, env.courses.DeleteSubmission(ctx, instructor("boss"), a.ID))

	_, err = env.submissions.GetByID(ctx, a.ID)
	require.True(t, appErr.IsNotFound(err))
	_, err = env.blocks.GetByID(ctx, blockA)
	require.True(t, appErr.IsNotFound(err))
	feedbacks, err := env.feedbacks.ListBySubmission(ctx, a.ID)
	require.NoError(t, err)
	require.Empty(t, feedbacks)

	// The cluster shrank in place and its member metrics were recomputed.
	rowB, err := env.blocks.GetByID(ctx, blockB)
	require.NoError(t, err)
	require.NotNil(t, rowB.ClusterID)
	cluster, err := env.clusters.GetByID(ctx, *rowB.ClusterID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{blockB, blockC}, cluster.BlockIDs)
	require.Equal(t, 1, rowB.NumberOfAffectedSubmissions)

	// The suggestion propagated onto b before the deletion is untouched.
	feedbacksB, err := env.feedbacks.ListBySubmission(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, feedbacksB, 1)
	require.Equal(t, model.FeedbackTypeAutomatic, feedbacksB[0].Type)

	// Dropping a second submission leaves a one-member cluster, which is
	// removed entirely.
	require.NoError(t, env.courses.DeleteSubmission(ctx, instructor("boss"), b.ID))
	rowC, err := env.blocks.GetByID(ctx, blockC)
	require.NoError(t, err)
	require.Nil(t, rowC.ClusterID)
	_, err = env.clusters.GetByID(ctx, cluster.ID)
	require.True(t, appErr.IsNotFound(err))
}
