package model

const (
	AssessmentTypeManual        = "MANUAL"
	AssessmentTypeSemiAutomatic = "SEMI_AUTOMATIC"
	AssessmentTypeAutomatic     = "AUTOMATIC"
)

type Exercise struct {
	ID             string  `db:"id" json:"id"`
	Title          string  `db:"title" json:"title"`
	AssessmentType string  `db:"assessment_type" json:"assessment_type"`
	MaxPoints      float64 `db:"max_points" json:"max_points"`
	Ctime          int64   `db:"ctime" json:"ctime"`
}

func SupportsAutomaticAssessment(assessmentType string) bool {
	return assessmentType == AssessmentTypeSemiAutomatic || assessmentType == AssessmentTypeAutomatic
}
