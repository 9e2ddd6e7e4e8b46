package model

// ClusterBatch is the result set delivered by the external segmentation and
// clustering service: a flat list of segments plus, per cluster, an ordered
// subset of segment ids and the distance matrix over that subset.
type ClusterBatch struct {
	Segments []BatchSegment `json:"segments"`
	Clusters []BatchCluster `json:"clusters"`
}

type BatchSegment struct {
	// ID is the upstream segment id, only used to resolve cluster
	// membership within the batch; persistent block identity is derived
	// from submission id and span.
	ID           string `json:"id"`
	SubmissionID string `json:"submission_id"`
	Text         string `json:"text"`
	StartIndex   int    `json:"start_index"`
	EndIndex     int    `json:"end_index"`
}

type BatchCluster struct {
	MemberSegmentIDs []string       `json:"member_segment_ids"`
	DistanceMatrix   DistanceMatrix `json:"distance_matrix"`
}
