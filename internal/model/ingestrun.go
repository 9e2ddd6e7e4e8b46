package model

const (
	IngestRunStatusOK       = "ok"
	IngestRunStatusRejected = "rejected"
)

// IngestRun records one clustering batch attempt for audit purposes.
type IngestRun struct {
	ID           string `db:"id" json:"id"`
	ExerciseID   string `db:"exercise_id" json:"exercise_id"`
	Status       string `db:"status" json:"status"`
	SegmentCount int    `db:"segment_count" json:"segment_count"`
	ClusterCount int    `db:"cluster_count" json:"cluster_count"`
	Error        string `db:"error" json:"error,omitempty"`
	ArchiveKey   string `db:"archive_key" json:"archive_key,omitempty"`
	Ctime        int64  `db:"ctime" json:"ctime"`
}
