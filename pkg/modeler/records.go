package modeler

import (
	"time"
)

// Event is one platform activity event, either delivered live over the
// event bus or replayed from the activity log.
type Event struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	UserID            int64     `json:"user_id"`
	CourseID          int64     `json:"course_id"`
	ContextLevel      int       `json:"context_level"`
	ContextInstanceID int64     `json:"context_instance_id"`
	RelatedUserID     int64     `json:"related_user_id"`
	Other             any       `json:"other"`
	CreatedAt         time.Time `json:"created_at"`
}

// Attempt is the progress data of one (attempt, sco) pair, grouped from the
// platform's SCORM value rows.
type Attempt struct {
	ValueID   int64             `json:"value_id"`
	AttemptID int64             `json:"attempt_id"`
	ScoID     int64             `json:"sco_id"`
	ModuleID  int64             `json:"module_id"`
	CourseID  int64             `json:"course_id"`
	UserID    int64             `json:"user_id"`
	StatusID  int64             `json:"status_id,omitempty"`
	Values    map[string]string `json:"values"`
	Timestamp time.Time         `json:"timestamp"`
}

// Interaction is one interaction sub-record of a SCORM attempt, grouped by
// ordinal from the raw cmi.interactions values.
type Interaction struct {
	Num         int    `json:"num"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Response    string `json:"response,omitempty"`
	Result      string `json:"result,omitempty"`
	Latency     string `json:"latency,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
	Time        string `json:"time,omitempty"`
}

// SCORM stage names, used both for template selection and scan status.
const (
	StageLaunched   = "launched"
	StageCompleted  = "completed"
	StageAssessed   = "assessed"
	StageInteracted = "interacted"
)
