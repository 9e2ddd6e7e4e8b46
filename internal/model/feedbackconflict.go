package model

// FeedbackConflict records a disagreement between two feedbacks referencing
// blocks of the same cluster. Conflict stays true until a human resolves it;
// Discard=true means "judged not a real conflict".
type FeedbackConflict struct {
	ID               string  `db:"id" json:"id"`
	FirstFeedbackID  string  `db:"first_feedback_id" json:"first_feedback_id"`
	SecondFeedbackID string  `db:"second_feedback_id" json:"second_feedback_id"`
	Conflict         bool    `db:"conflict" json:"conflict"`
	Discard          bool    `db:"discard" json:"discard"`
	CreatedAt        int64   `db:"created_at" json:"created_at"`
	SolvedAt         *int64  `db:"solved_at" json:"solved_at,omitempty"`
	SolvedBy         *string `db:"solved_by" json:"solved_by,omitempty"`
}
