package platform

import (
	"time"

	"gorm.io/datatypes"
)

// Context levels of the host platform.
const (
	ContextSystem = 10
	ContextUser   = 30
	ContextCourse = 50
	ContextModule = 70
)

// Grading schemes a module can carry. Anything else (no grading, text
// feedback) never yields a score statement.
const (
	GradeTypeValue = "value"
	GradeTypeScale = "scale"
)

// User is a platform account.
type User struct {
	ID        int64             `gorm:"primaryKey;column:id"`
	Username  string            `gorm:"column:username"`
	Email     string            `gorm:"column:email"`
	FirstName string            `gorm:"column:first_name"`
	LastName  string            `gorm:"column:last_name"`
	Profile   datatypes.JSONMap `gorm:"column:profile"`
}

func (User) TableName() string { return "platform_users" }

// Course is a platform course.
type Course struct {
	ID         int64  `gorm:"primaryKey;column:id"`
	FullName   string `gorm:"column:full_name"`
	ShortName  string `gorm:"column:short_name"`
	ExternalID string `gorm:"column:external_id"`
	Lang       string `gorm:"column:lang"`
}

func (Course) TableName() string { return "platform_courses" }

// Module is an activity module inside a course (quiz, scorm package, ...).
// Component follows the platform naming, e.g. "mod_quiz", "mod_scorm".
type Module struct {
	ID         int64   `gorm:"primaryKey;column:id"`
	CourseID   int64   `gorm:"column:course_id;index"`
	Component  string  `gorm:"column:component"`
	Name       string  `gorm:"column:name"`
	ExternalID string  `gorm:"column:external_id"`
	GradeType  string  `gorm:"column:grade_type"`
	GradeMin   float64 `gorm:"column:grade_min"`
	GradeMax   float64 `gorm:"column:grade_max"`
	GradePass  float64 `gorm:"column:grade_pass"`
}

func (Module) TableName() string { return "platform_modules" }

// LogEntry is one row of the platform's append-only activity log.
type LogEntry struct {
	ID                int64     `gorm:"primaryKey;column:id"`
	EventName         string    `gorm:"column:event_name"`
	UserID            int64     `gorm:"column:user_id"`
	CourseID          int64     `gorm:"column:course_id;index"`
	ContextLevel      int       `gorm:"column:context_level"`
	ContextInstanceID int64     `gorm:"column:context_instance_id"`
	RelatedUserID     int64     `gorm:"column:related_user_id"`
	Other             string    `gorm:"column:other"`
	CreatedAt         time.Time `gorm:"column:created_at"`
}

func (LogEntry) TableName() string { return "platform_log" }

// Sco is a trackable item of a SCORM package module.
type Sco struct {
	ID         int64  `gorm:"primaryKey;column:id"`
	ModuleID   int64  `gorm:"column:module_id;index"`
	Name       string `gorm:"column:name"`
	Identifier string `gorm:"column:identifier"`
}

func (Sco) TableName() string { return "platform_scos" }

// ScormAttempt is one learner attempt on a SCORM package.
type ScormAttempt struct {
	ID       int64 `gorm:"primaryKey;column:id"`
	UserID   int64 `gorm:"column:user_id"`
	ModuleID int64 `gorm:"column:module_id;index"`
	Number   int   `gorm:"column:number"`
}

func (ScormAttempt) TableName() string { return "platform_scorm_attempts" }

// ScoValue is one key/value of SCORM progress data for an (attempt, sco).
type ScoValue struct {
	ID         int64     `gorm:"primaryKey;column:id"`
	AttemptID  int64     `gorm:"column:attempt_id;index"`
	ScoID      int64     `gorm:"column:sco_id;index"`
	Element    string    `gorm:"column:element"`
	Value      string    `gorm:"column:value"`
	ModifiedAt time.Time `gorm:"column:modified_at"`
}

func (ScoValue) TableName() string { return "platform_sco_values" }
