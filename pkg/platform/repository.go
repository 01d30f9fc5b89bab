package platform

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a platform row does not exist.
var ErrNotFound = errors.New("platform: record not found")

// Repository reads the host platform's tables. The platform owns this data;
// the agent only ever reads it.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// AutoMigrate creates the platform tables. Only used by tests and local
// setups; in production the host platform owns the schema.
func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&User{}, &Course{}, &Module{}, &LogEntry{}, &Sco{}, &ScormAttempt{}, &ScoValue{})
}

func (r *Repository) User(id int64) (*User, error) {
	var u User
	if err := r.db.First(&u, id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &u, nil
}

func (r *Repository) Course(id int64) (*Course, error) {
	var c Course
	if err := r.db.First(&c, id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &c, nil
}

func (r *Repository) Module(id int64) (*Module, error) {
	var m Module
	if err := r.db.First(&m, id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &m, nil
}

func (r *Repository) Sco(id int64) (*Sco, error) {
	var s Sco
	if err := r.db.First(&s, id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &s, nil
}

func (r *Repository) Attempt(id int64) (*ScormAttempt, error) {
	var a ScormAttempt
	if err := r.db.First(&a, id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &a, nil
}

// Log returns one activity log row by id.
func (r *Repository) Log(id int64) (*LogEntry, error) {
	var row LogEntry
	if err := r.db.First(&row, id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &row, nil
}

// Logs returns up to limit activity log rows of a course with id greater
// than afterID and creation time at or after from, in ascending id order.
func (r *Repository) Logs(courseID int64, afterID int64, from time.Time, limit int) ([]LogEntry, error) {
	var rows []LogEntry
	err := r.db.
		Where("course_id = ? AND id > ? AND created_at >= ?", courseID, afterID, from).
		Order("id asc").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ScoValueRow is a SCORM progress value joined with its attempt and course.
type ScoValueRow struct {
	ValueID    int64
	AttemptID  int64
	ScoID      int64
	ModuleID   int64
	CourseID   int64
	UserID     int64
	Element    string
	Value      string
	ModifiedAt time.Time
}

// ScoValues returns up to limit progress values of a course for the given
// element keys, in ascending (modified_at, id) order. The (after, afterID)
// pair is an exclusive watermark: rows modified at exactly the watermark
// time are included only when their id is greater, so timestamp ties are
// neither skipped nor revisited.
func (r *Repository) ScoValues(courseID int64, elements []string, after time.Time, afterID int64, limit int) ([]ScoValueRow, error) {
	var rows []ScoValueRow
	err := r.db.
		Table("platform_sco_values AS v").
		Select(`v.id AS value_id, v.attempt_id, v.sco_id, s.module_id, m.course_id,
			a.user_id, v.element, v.value, v.modified_at`).
		Joins("JOIN platform_scos AS s ON s.id = v.sco_id").
		Joins("JOIN platform_modules AS m ON m.id = s.module_id").
		Joins("JOIN platform_scorm_attempts AS a ON a.id = v.attempt_id").
		Where("m.course_id = ? AND v.element IN ?", courseID, elements).
		Where("v.modified_at > ? OR (v.modified_at = ? AND v.id > ?)", after, after, afterID).
		Order("v.modified_at asc, v.id asc").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// ScoValueRowByID returns one progress value row with its joined context.
func (r *Repository) ScoValueRowByID(id int64) (*ScoValueRow, error) {
	var row ScoValueRow
	err := r.db.
		Table("platform_sco_values AS v").
		Select(`v.id AS value_id, v.attempt_id, v.sco_id, s.module_id, m.course_id,
			a.user_id, v.element, v.value, v.modified_at`).
		Joins("JOIN platform_scos AS s ON s.id = v.sco_id").
		Joins("JOIN platform_modules AS m ON m.id = s.module_id").
		Joins("JOIN platform_scorm_attempts AS a ON a.id = v.attempt_id").
		Where("v.id = ?", id).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ValueID == 0 {
		return nil, ErrNotFound
	}
	return &row, nil
}

// AttemptValues returns every progress value of one (attempt, sco) pair.
func (r *Repository) AttemptValues(attemptID, scoID int64) ([]ScoValue, error) {
	var rows []ScoValue
	err := r.db.
		Where("attempt_id = ? AND sco_id = ?", attemptID, scoID).
		Find(&rows).Error
	return rows, err
}

func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
