package model

const (
	FeedbackTypeManual             = "MANUAL"
	FeedbackTypeManualUnreferenced = "MANUAL_UNREFERENCED"
	FeedbackTypeAutomatic          = "AUTOMATIC"
)

// Feedback is an assessor's judgment on one block (Reference set) or on the
// whole submission (Reference nil). The Origin* fields are provenance and are
// only ever set on feedback produced by automatic suggestion; ResultID is nil
// while a suggestion waits for its target submission to be locked.
type Feedback struct {
	ID                    string  `db:"id" json:"id"`
	SubmissionID          string  `db:"submission_id" json:"submission_id"`
	ResultID              *string `db:"result_id" json:"result_id,omitempty"`
	Reference             *string `db:"reference" json:"reference,omitempty"`
	Credits               float64 `db:"credits" json:"credits"`
	DetailText            string  `db:"detail_text" json:"detail_text"`
	Type                  string  `db:"type" json:"type"`
	OriginFeedbackRef     *string `db:"origin_feedback_ref" json:"suggested_feedback_reference,omitempty"`
	OriginSubmissionID    *string `db:"origin_submission_id" json:"suggested_feedback_origin_submission,omitempty"`
	OriginParticipationID *string `db:"origin_participation_id" json:"suggested_feedback_origin_participation,omitempty"`
	Ctime                 int64   `db:"ctime" json:"ctime"`
}

func (f *Feedback) IsSuggested() bool {
	return f.OriginFeedbackRef != nil
}

func (f *Feedback) IsManualReferenced() bool {
	return f.Type == FeedbackTypeManual && f.Reference != nil
}
