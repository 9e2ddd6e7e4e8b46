package model

// Submission and Result are owned by the surrounding exercise subsystem;
// this service only needs them as containers for blocks and feedback.
type Submission struct {
	ID              string `db:"id" json:"id"`
	ExerciseID      string `db:"exercise_id" json:"exercise_id"`
	ParticipationID string `db:"participation_id" json:"participation_id"`
	Text            string `db:"text" json:"text"`
	Submitted       bool   `db:"submitted" json:"submitted"`
	Ctime           int64  `db:"ctime" json:"ctime"`
}

// Result is one assessment pass over a submission. An uncompleted result
// (CompletionDate nil) is the lock: its assessor holds exclusive access to
// the submission for that correction round.
type Result struct {
	ID              string  `db:"id" json:"id"`
	SubmissionID    string  `db:"submission_id" json:"submission_id"`
	AssessorID      string  `db:"assessor_id" json:"assessor_id"`
	CorrectionRound int     `db:"correction_round" json:"correction_round"`
	CompletionDate  *int64  `db:"completion_date" json:"completion_date,omitempty"`
	Ctime           int64   `db:"ctime" json:"ctime"`
	Mtime           int64   `db:"mtime" json:"mtime"`
}

func (r *Result) Completed() bool {
	return r.CompletionDate != nil
}
