package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
)

// DistanceMatrix holds pairwise dissimilarity in [0,1] between a cluster's
// member blocks; row/column order matches the cluster's member order.
type DistanceMatrix [][]float64

const distanceEpsilon = 1e-9

func (m DistanceMatrix) Validate() error {
	n := len(m)
	for i, row := range m {
		if len(row) != n {
			return fmt.Errorf("distance matrix is not square: row %d has %d entries, want %d", i, len(row), n)
		}
		if m[i][i] != 0 {
			return fmt.Errorf("distance matrix diagonal entry %d is %v, want 0", i, m[i][i])
		}
		for j, v := range row {
			if v < 0 || v > 1 {
				return fmt.Errorf("distance matrix entry (%d,%d) is %v, want [0,1]", i, j, v)
			}
			if math.Abs(v-m[j][i]) > distanceEpsilon {
				return fmt.Errorf("distance matrix is not symmetric at (%d,%d)", i, j)
			}
		}
	}
	return nil
}

// TextCluster is an ordered set of semantically equivalent blocks plus the
// distance matrix over that order. Member order is load-bearing: matrix
// rows/columns are positional, so membership is only ever mutated through
// RemoveMember, which keeps both structures in lock-step.
type TextCluster struct {
	ID         string         `json:"id"`
	ExerciseID string         `json:"exercise_id"`
	BlockIDs   []string       `json:"block_ids"`
	Matrix     DistanceMatrix `json:"distance_matrix"`
	Disabled   bool           `json:"disabled"`
	Ctime      int64          `json:"ctime"`
}

// ComputeTextClusterID derives the cluster id from the exercise and the
// sorted member block ids, so re-ingesting an identical cluster keeps its
// identity (and its disabled flag).
func ComputeTextClusterID(exerciseID string, blockIDs []string) string {
	sorted := make([]string, len(blockIDs))
	copy(sorted, blockIDs)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(exerciseID + ";" + strings.Join(sorted, ",")))
	return hex.EncodeToString(sum[:])
}

func (c *TextCluster) Size() int {
	return len(c.BlockIDs)
}

func (c *TextCluster) Validate() error {
	if len(c.Matrix) != len(c.BlockIDs) {
		return fmt.Errorf("cluster %s: matrix dimension %d does not match member count %d", c.ID, len(c.Matrix), len(c.BlockIDs))
	}
	return c.Matrix.Validate()
}

func (c *TextCluster) MemberIndex(blockID string) int {
	for i, id := range c.BlockIDs {
		if id == blockID {
			return i
		}
	}
	return -1
}

// Distance returns the pairwise distance between two member blocks.
func (c *TextCluster) Distance(aID, bID string) (float64, bool) {
	i, j := c.MemberIndex(aID), c.MemberIndex(bID)
	if i < 0 || j < 0 {
		return 0, false
	}
	return c.Matrix[i][j], true
}

// MeanDistance is the average distance of a member to all its cluster-mates;
// lower means more central.
func (c *TextCluster) MeanDistance(blockID string) (float64, bool) {
	i := c.MemberIndex(blockID)
	if i < 0 {
		return 0, false
	}
	if len(c.BlockIDs) < 2 {
		return 0, true
	}
	var sum float64
	for j := range c.BlockIDs {
		if j != i {
			sum += c.Matrix[i][j]
		}
	}
	return sum / float64(len(c.BlockIDs)-1), true
}

// AddedDistance scores how much closeness a member contributes to its
// cluster: the sum of (1 - distance) over its cluster-mates. Higher means
// more representative.
func (c *TextCluster) AddedDistance(blockID string) (float64, bool) {
	i := c.MemberIndex(blockID)
	if i < 0 {
		return 0, false
	}
	var sum float64
	for j := range c.BlockIDs {
		if j != i {
			sum += 1 - c.Matrix[i][j]
		}
	}
	return sum, true
}

// RemoveMember drops a block from the cluster, removing the matching matrix
// row and column (never merely zero-filling them) so indices stay aligned
// with member order.
func (c *TextCluster) RemoveMember(blockID string) error {
	idx := c.MemberIndex(blockID)
	if idx < 0 {
		return fmt.Errorf("cluster %s: block %s is not a member", c.ID, blockID)
	}
	c.BlockIDs = append(c.BlockIDs[:idx], c.BlockIDs[idx+1:]...)
	c.Matrix = append(c.Matrix[:idx], c.Matrix[idx+1:]...)
	for i, row := range c.Matrix {
		c.Matrix[i] = append(row[:idx], row[idx+1:]...)
	}
	return c.Validate()
}
