package queue

import (
	"time"

	"gorm.io/datatypes"
)

// Item statuses. A flush delivers pending items only; both failure
// statuses wait for an explicit retry, so nothing is ever re-posted
// without an operator (or the scheduler's retry interval) asking for it.
const (
	StatusPending        = 0
	StatusErrorTransport = 1
	StatusErrorRemote    = 2
)

// Item is one queued statement awaiting delivery to an LRS target.
// Items are only ever deleted after the LRS accepted them; failures are
// marked in place so ids, and with them delivery order, survive retries.
// ErrorCode holds the HTTP status of the last remote rejection, 0 for
// transport failures.
type Item struct {
	ID        int64          `gorm:"primaryKey;column:id"`
	LRS       int            `gorm:"column:lrs;index:idx_queue_target"`
	CourseID  int64          `gorm:"column:course_id;index:idx_queue_target"`
	Statement datatypes.JSON `gorm:"column:statement"`
	Status    int            `gorm:"column:status;index"`
	Attempts  int            `gorm:"column:attempts"`
	ErrorCode int            `gorm:"column:error_code"`
	LastError string         `gorm:"column:last_error"`
	CreatedAt time.Time      `gorm:"column:created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at"`
}

func (Item) TableName() string { return "xapi_queue" }
