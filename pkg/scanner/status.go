package scanner

import (
	"time"

	"github.com/openlearn/xapi-agent/pkg/modeler"
)

// SCORM stage ranks. A pair only ever moves forward; StageInteracted is
// terminal.
const (
	RankNone       = 0
	RankLaunched   = 1
	RankCompleted  = 2
	RankAssessed   = 3
	RankInteracted = 4
)

var stageRanks = map[string]int{
	modeler.StageLaunched:   RankLaunched,
	modeler.StageCompleted:  RankCompleted,
	modeler.StageAssessed:   RankAssessed,
	modeler.StageInteracted: RankInteracted,
}

// LogStatus is the per (course, target) cursor over the activity log.
type LogStatus struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	CourseID  int64     `gorm:"column:course_id;uniqueIndex:idx_log_status"`
	LRS       int       `gorm:"column:lrs;uniqueIndex:idx_log_status"`
	LastLogID int64     `gorm:"column:last_log_id"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (LogStatus) TableName() string { return "xapi_log_status" }

// ScormStatus is the per (course, target) watermark over SCORM progress
// values. The row id of the last processed value breaks modification-time
// ties, so equal timestamps can neither be skipped nor reprocessed forever.
type ScormStatus struct {
	ID             int64     `gorm:"primaryKey;column:id"`
	CourseID       int64     `gorm:"column:course_id;uniqueIndex:idx_scorm_status"`
	LRS            int       `gorm:"column:lrs;uniqueIndex:idx_scorm_status"`
	LastModifiedAt time.Time `gorm:"column:last_modified_at"`
	LastValueID    int64     `gorm:"column:last_value_id"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (ScormStatus) TableName() string { return "xapi_scorm_status" }

// ScoStatus tracks how far one (attempt, sco, target) triple has advanced
// through the stage machine.
type ScoStatus struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	AttemptID int64     `gorm:"column:attempt_id;uniqueIndex:idx_sco_status"`
	ScoID     int64     `gorm:"column:sco_id;uniqueIndex:idx_sco_status"`
	LRS       int       `gorm:"column:lrs;uniqueIndex:idx_sco_status"`
	Rank      int       `gorm:"column:rank"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (ScoStatus) TableName() string { return "xapi_sco_status" }
