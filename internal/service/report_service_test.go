package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lwald/semgrade/internal/model"
	appErr "github.com/lwald/semgrade/internal/pkg/errors"
)

func TestReport_RenderHTML(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exercise := mustExercise(t, env, model.AssessmentTypeSemiAutomatic)
	a, b, blockA, blockB := clusteredPair(t, env, exercise.ID)

	submitManual(t, env, tutor("tutor-1"), a.ID, blockA, 1)
	submitManual(t, env, tutor("tutor-2"), b.ID, blockB, 2)

	reports := NewReportService(env.exercises, env.clusterSvc, env.conflictSvc)

	html, err := reports.RenderHTML(ctx, instructor("boss"), exercise.ID)
	require.NoError(t, err)
	require.Contains(t, string(html), "<h1>")
	require.Contains(t, string(html), "Clusters (1)")
	require.Contains(t, string(html), "Open feedback conflicts (1)")
	require.Contains(t, string(html), "<table>")

	_, err = reports.RenderHTML(ctx, tutor("tutor-1"), exercise.ID)
	require.ErrorIs(t, err, appErr.ErrForbidden)

	_, err = reports.RenderHTML(ctx, instructor("boss"), "no-such-exercise")
	require.True(t, appErr.IsNotFound(err))
}
