package errorlog

import (
	"time"

	"gorm.io/gorm"
)

// Entry kinds. Modeling entries can be replayed once the cause (usually a
// broken custom template) is fixed; delivery entries record failed batch
// posts and are cleared when their items are retried or dropped.
const (
	KindModeling  = "modeling"
	KindTransport = "transport"
	KindRemote    = "remote"
)

// Source kinds a modeling entry can point back to.
const (
	SourceEvent       = 1
	SourceAttempt     = 2
	SourceInteraction = 3
)

// Entry is one recorded failure.
type Entry struct {
	ID         int64     `gorm:"primaryKey;column:id"`
	Kind       string    `gorm:"column:kind;index"`
	Error      string    `gorm:"column:error"`
	SourceKind int       `gorm:"column:source_kind"`
	SourceID   int64     `gorm:"column:source_id"`
	Stage      string    `gorm:"column:stage"`
	CourseID   int64     `gorm:"column:course_id;index"`
	LRS        int       `gorm:"column:lrs"`
	Code       int       `gorm:"column:code"`
	Template   string    `gorm:"column:template"`
	Detail     string    `gorm:"column:detail"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (Entry) TableName() string { return "xapi_errors" }

// Service persists and queries failure entries.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) AutoMigrate() error {
	return s.db.AutoMigrate(&Entry{})
}

func (s *Service) Add(entry *Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return s.db.Create(entry).Error
}

// Counts returns the number of entries per kind.
func (s *Service) Counts() (map[string]int64, error) {
	var rows []struct {
		Kind  string
		Count int64
	}
	err := s.db.Model(&Entry{}).
		Select("kind, count(*) AS count").
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Kind] = row.Count
	}
	return out, nil
}

// Batch returns up to limit entries of one kind with id greater than
// afterID, in ascending id order.
func (s *Service) Batch(kind string, afterID int64, limit int) ([]Entry, error) {
	var rows []Entry
	err := s.db.
		Where("kind = ? AND id > ?", kind, afterID).
		Order("id asc").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// LastID returns the highest entry id, 0 when the log is empty. Replay
// passes snapshot it up front so entries they add themselves are not
// revisited in the same pass.
func (s *Service) LastID() (int64, error) {
	var id *int64
	err := s.db.Model(&Entry{}).Select("max(id)").Scan(&id).Error
	if err != nil || id == nil {
		return 0, err
	}
	return *id, nil
}

func (s *Service) Delete(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.Delete(&Entry{}, ids).Error
}

// ClearDelivery removes the delivery entries of one target. Pass the
// transaction that also drops the errored queue items so the two cannot
// diverge; nil uses the service handle directly.
func (s *Service) ClearDelivery(tx *gorm.DB, target int) error {
	if tx == nil {
		tx = s.db
	}
	return tx.
		Where("lrs = ? AND kind IN ?", target, []string{KindTransport, KindRemote}).
		Delete(&Entry{}).Error
}

// Clear removes every entry of the given kinds, or all entries when no
// kind is given.
func (s *Service) Clear(kinds ...string) error {
	q := s.db.Session(&gorm.Session{AllowGlobalUpdate: true})
	if len(kinds) > 0 {
		q = q.Where("kind IN ?", kinds)
	}
	return q.Delete(&Entry{}).Error
}
