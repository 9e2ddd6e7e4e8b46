package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDistanceMatrixValidate(t *testing.T) {
	valid := DistanceMatrix{
		{0, 0.1, 0.2},
		{0.1, 0, 0.2},
		{0.2, 0.2, 0},
	}
	require.NoError(t, valid.Validate())

	notSquare := DistanceMatrix{{0, 0.1}, {0.1}}
	require.Error(t, notSquare.Validate())

	badDiagonal := DistanceMatrix{{0.5, 0.1}, {0.1, 0}}
	require.Error(t, badDiagonal.Validate())

	outOfRange := DistanceMatrix{{0, 1.5}, {1.5, 0}}
	require.Error(t, outOfRange.Validate())

	asymmetric := DistanceMatrix{{0, 0.1}, {0.4, 0}}
	require.Error(t, asymmetric.Validate())
}

func TestComputeTextClusterIDOrderIndependent(t *testing.T) {
	a := ComputeTextClusterID("ex1", []string{"b1", "b2", "b3"})
	b := ComputeTextClusterID("ex1", []string{"b3", "b1", "b2"})
	require.Equal(t, a, b)

	other := ComputeTextClusterID("ex2", []string{"b1", "b2", "b3"})
	require.NotEqual(t, a, other)
}

func TestComputeTextBlockIDStable(t *testing.T) {
	first := ComputeTextBlockID("sub1", 0, 15)
	second := ComputeTextBlockID("sub1", 0, 15)
	require.Equal(t, first, second)
	require.NotEqual(t, first, ComputeTextBlockID("sub1", 0, 16))
	require.NotEqual(t, first, ComputeTextBlockID("sub2", 0, 15))
}

func TestRemoveMemberKeepsMatrixAligned(t *testing.T) {
	cluster := &TextCluster{
		ID:         "c1",
		ExerciseID: "ex1",
		BlockIDs:   []string{"b0", "b1", "b2"},
		Matrix: DistanceMatrix{
			{0, 0.1, 0.2},
			{0.1, 0, 0.3},
			{0.2, 0.3, 0},
		},
	}
	require.NoError(t, cluster.RemoveMember("b1"))
	require.Equal(t, []string{"b0", "b2"}, cluster.BlockIDs)
	require.Equal(t, DistanceMatrix{
		{0, 0.2},
		{0.2, 0},
	}, cluster.Matrix)
	require.NoError(t, cluster.Validate())

	require.Error(t, cluster.RemoveMember("missing"))
}

func TestAddedDistance(t *testing.T) {
	cluster := &TextCluster{
		BlockIDs: []string{"b0", "b1", "b2"},
		Matrix: DistanceMatrix{
			{0, 0.1, 0.2},
			{0.1, 0, 0.2},
			{0.2, 0.2, 0},
		},
	}
	added, ok := cluster.AddedDistance("b0")
	require.True(t, ok)
	require.InDelta(t, 1.7, added, 1e-9)

	added, ok = cluster.AddedDistance("b2")
	require.True(t, ok)
	require.InDelta(t, 1.6, added, 1e-9)

	_, ok = cluster.AddedDistance("missing")
	require.False(t, ok)
}

func TestMeanDistance(t *testing.T) {
	cluster := &TextCluster{
		BlockIDs: []string{"b0", "b1", "b2"},
		Matrix: DistanceMatrix{
			{0, 0.1, 0.2},
			{0.1, 0, 0.2},
			{0.2, 0.2, 0},
		},
	}
	mean, ok := cluster.MeanDistance("b0")
	require.True(t, ok)
	require.InDelta(t, 0.15, mean, 1e-9)

	mean, ok = cluster.MeanDistance("b2")
	require.True(t, ok)
	require.InDelta(t, 0.2, mean, 1e-9)
}
