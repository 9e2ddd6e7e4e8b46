package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lwald/semgrade/internal/model"
)

func TestSubmit_PropagatesSuggestionWithProvenance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exercise := mustExercise(t, env, model.AssessmentTypeSemiAutomatic)
	a, b, blockA, blockB := clusteredPair(t, env, exercise.ID)

	bundle, err := env.assessments.Lock(ctx, tutor("tutor-1"), a.ID, 0)
	require.NoError(t, err)
	_, err = env.assessments.Submit(ctx, tutor("tutor-1"), bundle.Result.ID, &SaveFeedbackRequest{
		Feedbacks: []FeedbackInput{
			{Reference: &blockA, Credits: 2, DetailText: "Foo Bar.", Type: model.FeedbackTypeManual},
		},
	})
	require.NoError(t, err)

	suggestions, err := env.feedbacks.ListBySubmission(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	suggestion := suggestions[0]
	require.Equal(t, model.FeedbackTypeAutomatic, suggestion.Type)
	require.Equal(t, 2.0, suggestion.Credits)
	require.Equal(t, "Foo Bar.", suggestion.DetailText)
	require.NotNil(t, suggestion.Reference)
	require.Equal(t, blockB, *suggestion.Reference)
	require.NotNil(t, suggestion.OriginFeedbackRef)
	require.Equal(t, blockA, *suggestion.OriginFeedbackRef)
	require.NotNil(t, suggestion.OriginSubmissionID)
	require.Equal(t, a.ID, *suggestion.OriginSubmissionID)
	require.NotNil(t, suggestion.OriginParticipationID)
	require.Equal(t, a.ParticipationID, *suggestion.OriginParticipationID)
	require.Nil(t, suggestion.ResultID)

	// Locking the target submission adopts the pending suggestion.
	adopted, err := env.assessments.Lock(ctx, tutor("tutor-2"), b.ID, 0)
	require.NoError(t, err)
	require.Len(t, adopted.Feedbacks, 1)
	require.Equal(t, suggestion.ID, adopted.Feedbacks[0].ID)
	require.NotNil(t, adopted.Feedbacks[0].ResultID)
	require.Equal(t, adopted.Result.ID, *adopted.Feedbacks[0].ResultID)
}

func TestPropagate_SkipsBlockWithFeedback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exercise := mustExercise(t, env, model.AssessmentTypeSemiAutomatic)
	a, b, blockA, _ := clusteredPair(t, env, exercise.ID)

	bundle, err := env.assessments.Lock(ctx, tutor("tutor-1"), a.ID, 0)
	require.NoError(t, err)
	_, err = env.assessments.Submit(ctx, tutor("tutor-1"), bundle.Result.ID, &SaveFeedbackRequest{
		Feedbacks: []FeedbackInput{
			{Reference: &blockA, Credits: 2, DetailText: "Foo Bar.", Type: model.FeedbackTypeManual},
		},
	})
	require.NoError(t, err)

	origin, err := env.feedbacks.ListBySubmission(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, origin, 1)

	// The target already got a suggestion; propagating again adds nothing.
	require.NoError(t, env.suggestions.Propagate(ctx, origin[0]))
	suggestions, err := env.feedbacks.ListBySubmission(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
}

func TestPropagate_SkipsDisabledCluster(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exercise := mustExercise(t, env, model.AssessmentTypeSemiAutomatic)
	a, b, blockA, _ := clusteredPair(t, env, exercise.ID)

	clusters, err := env.clusters.ListByExercise(ctx, exercise.ID)
	require.NoError(t, err)
	require.NoError(t, env.clusterSvc.SetDisabled(ctx, instructor("boss"), clusters[0].ID, true))

	bundle, err := env.assessments.Lock(ctx, tutor("tutor-1"), a.ID, 0)
	require.NoError(t, err)
	_, err = env.assessments.Submit(ctx, tutor("tutor-1"), bundle.Result.ID, &SaveFeedbackRequest{
		Feedbacks: []FeedbackInput{
			{Reference: &blockA, Credits: 2, DetailText: "Foo Bar.", Type: model.FeedbackTypeManual},
		},
	})
	require.NoError(t, err)

	suggestions, err := env.feedbacks.ListBySubmission(ctx, b.ID)
	require.NoError(t, err)
	require.Empty(t, suggestions)
}

func TestPropagate_NoClusterIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exercise := mustExercise(t, env, model.AssessmentTypeSemiAutomatic)
	a := mustSubmission(t, env, exercise.ID, "p0")
	b := mustSubmission(t, env, exercise.ID, "p1")

	// Blocks exist but no cluster was ever formed.
	batch := &model.ClusterBatch{
		Segments: []model.BatchSegment{
			{ID: "s0", SubmissionID: a.ID, Text: a.Text[0:15], StartIndex: 0, EndIndex: 15},
			{ID: "s1", SubmissionID: b.ID, Text: b.Text[0:15], StartIndex: 0, EndIndex: 15},
		},
	}
	_, err := env.ingest.IngestBatch(ctx, exercise.ID, batch)
	require.NoError(t, err)

	blockA := model.ComputeTextBlockID(a.ID, 0, 15)
	bundle, err := env.assessments.Lock(ctx, tutor("tutor-1"), a.ID, 0)
	require.NoError(t, err)
	_, err = env.assessments.Submit(ctx, tutor("tutor-1"), bundle.Result.ID, &SaveFeedbackRequest{
		Feedbacks: []FeedbackInput{
			{Reference: &blockA, Credits: 2, DetailText: "Foo Bar.", Type: model.FeedbackTypeManual},
		},
	})
	require.NoError(t, err)

	suggestions, err := env.feedbacks.ListBySubmission(ctx, b.ID)
	require.NoError(t, err)
	require.Empty(t, suggestions)
}

func TestCancel_KeepsPendingSuggestionForNextAssessor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exercise := mustExercise(t, env, model.AssessmentTypeSemiAutomatic)
	a, b, blockA, _ := clusteredPair(t, env, exercise.ID)

	bundle, err := env.assessments.Lock(ctx, tutor("tutor-1"), a.ID, 0)
	require.NoError(t, err)
	_, err = env.assessments.Submit(ctx, tutor("tutor-1"), bundle.Result.ID, &SaveFeedbackRequest{
		Feedbacks: []FeedbackInput{
			{Reference: &blockA, Credits: 2, DetailText: "Foo Bar.", Type: model.FeedbackTypeManual},
		},
	})
	require.NoError(t, err)

	locked, err := env.assessments.Lock(ctx, tutor("tutor-2"), b.ID, 0)
	require.NoError(t, err)
	require.Len(t, locked.Feedbacks, 1)

	require.NoError(t, env.assessments.Cancel(ctx, tutor("tutor-2"), locked.Result.ID))

	// The suggestion survived the cancel, detached again.
	suggestions, err := env.feedbacks.ListBySubmission(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	require.Nil(t, suggestions[0].ResultID)
}
