package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	TextBlockTypeAutomatic = "AUTOMATIC"
	TextBlockTypeManual    = "MANUAL"
)

// TextBlock is a contiguous [StartIndex, EndIndex) span of a submission's
// text, the atomic unit of assessment.
type TextBlock struct {
	ID                          string   `db:"id" json:"id"`
	SubmissionID                string   `db:"submission_id" json:"submission_id"`
	StartIndex                  int      `db:"start_index" json:"start_index"`
	EndIndex                    int      `db:"end_index" json:"end_index"`
	Text                        string   `db:"text" json:"text"`
	Type                        string   `db:"type" json:"type"`
	ClusterID                   *string  `db:"cluster_id" json:"cluster_id,omitempty"`
	PositionInCluster           *int     `db:"position_in_cluster" json:"position_in_cluster,omitempty"`
	AddedDistance               *float64 `db:"added_distance" json:"added_distance,omitempty"`
	NumberOfAffectedSubmissions int      `db:"affected_submissions" json:"number_of_affected_submissions"`
	Ctime                       int64    `db:"ctime" json:"ctime"`
	Mtime                       int64    `db:"mtime" json:"mtime"`
}

// ComputeTextBlockID derives the block id from the owning submission and the
// span boundaries. Re-ingesting the same span therefore always yields the
// same id, which is what keeps block identity stable across fetch paths.
func ComputeTextBlockID(submissionID string, startIndex, endIndex int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s;%d-%d", submissionID, startIndex, endIndex)))
	return hex.EncodeToString(sum[:])
}
