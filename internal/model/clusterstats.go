package model

type ClusterStatistics struct {
	ClusterID                  string `json:"cluster_id"`
	ClusterSize                int    `json:"cluster_size"`
	NumberOfAutomaticFeedbacks int    `json:"number_of_automatic_feedbacks"`
	Disabled                   bool   `json:"disabled"`
}
