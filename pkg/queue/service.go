package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/openlearn/xapi-agent/pkg/common/logger"
	"github.com/openlearn/xapi-agent/pkg/errorlog"
	"github.com/openlearn/xapi-agent/pkg/lrs"
)

const (
	flushLockTTL    = 5 * time.Minute
	flushLockPrefix = "xapi:flush:lock:"
	lastSentPrefix  = "xapi:flush:last:"
	maxFlushBatches = 1000
)

// Poster delivers one batch of statements. *lrs.Client satisfies it; tests
// swap in stubs.
type Poster interface {
	PostStatements(ctx context.Context, statements []json.RawMessage) (*lrs.Response, error)
}

// Service is the durable delivery queue. Statements are enqueued in the
// same transaction that advances the source cursor, then flushed to their
// LRS target in batches.
type Service struct {
	db        *gorm.DB
	rdb       *redis.Client
	posters   map[int]Poster
	errors    *errorlog.Service
	batchSize int
	log       *logrus.Entry
}

func NewService(db *gorm.DB, rdb *redis.Client, posters map[int]Poster, errors *errorlog.Service, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Service{
		db:        db,
		rdb:       rdb,
		posters:   posters,
		errors:    errors,
		batchSize: batchSize,
		log:       logger.Component("queue"),
	}
}

func (s *Service) AutoMigrate() error {
	return s.db.AutoMigrate(&Item{})
}

// Enqueue appends statements for one (target, course) pair. Pass the
// transaction that also advances the source cursor so a crash can never
// separate the two.
func (s *Service) Enqueue(tx *gorm.DB, target int, courseID int64, statements []map[string]any) error {
	if tx == nil {
		tx = s.db
	}
	items := make([]Item, 0, len(statements))
	for _, st := range statements {
		raw, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("marshal statement: %w", err)
		}
		items = append(items, Item{
			LRS:       target,
			CourseID:  courseID,
			Statement: datatypes.JSON(raw),
			Status:    StatusPending,
		})
	}
	if len(items) == 0 {
		return nil
	}
	return tx.Create(&items).Error
}

// Size returns the number of queued items per status for one target,
// optionally scoped to one course.
func (s *Service) Size(target int, courseID ...int64) (map[int]int64, error) {
	var rows []struct {
		Status int
		Count  int64
	}
	q := s.db.Model(&Item{}).
		Select("status, count(*) AS count").
		Where("lrs = ?", target)
	if len(courseID) > 0 {
		q = q.Where("course_id = ?", courseID[0])
	}
	err := q.Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := map[int]int64{StatusPending: 0, StatusErrorTransport: 0, StatusErrorRemote: 0}
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

// FlushReport summarizes one flush or retry pass.
type FlushReport struct {
	Target  int     `json:"target"`
	Sent    int     `json:"sent"`
	Batches int     `json:"batches"`
	Failed  int     `json:"failed"`
	Courses []int64 `json:"courses,omitempty"`
	Skipped bool    `json:"skipped,omitempty"`
}

// Flush delivers pending items of one target, course by course in
// ascending id order. A failed batch halts that course for this pass, so
// a course's statements always reach the LRS in the order they were
// queued; other courses are unaffected. Failed items leave the pending
// set and stay put until an explicit Retry. Overlapping flushes of the
// same target are excluded through a redis lock.
func (s *Service) Flush(ctx context.Context, target int) (*FlushReport, error) {
	report := &FlushReport{Target: target}

	poster, ok := s.posters[target]
	if !ok {
		return nil, fmt.Errorf("flush: no client for target %d", target)
	}

	release, acquired, err := s.lock(ctx, target)
	if err != nil {
		return nil, err
	}
	if !acquired {
		report.Skipped = true
		return report, nil
	}
	defer release()

	if err := s.drain(ctx, poster, target, StatusPending, report); err != nil {
		return report, err
	}
	s.markDelivered(ctx, target, report)
	return report, nil
}

// Retry re-attempts delivery of failed items: transport failures first,
// then remote rejections, as two separate waves so a fresh failure in the
// first wave cannot interleave with the second. Prior delivery log
// entries for the target are cleared up front; failures during the retry
// write new ones.
func (s *Service) Retry(ctx context.Context, target int) (*FlushReport, error) {
	report := &FlushReport{Target: target}

	poster, ok := s.posters[target]
	if !ok {
		return nil, fmt.Errorf("retry: no client for target %d", target)
	}

	release, acquired, err := s.lock(ctx, target)
	if err != nil {
		return nil, err
	}
	if !acquired {
		report.Skipped = true
		return report, nil
	}
	defer release()

	if s.errors != nil {
		if err := s.errors.ClearDelivery(nil, target); err != nil {
			return nil, fmt.Errorf("clear delivery log: %w", err)
		}
	}
	for _, status := range []int{StatusErrorTransport, StatusErrorRemote} {
		if err := s.drain(ctx, poster, target, status, report); err != nil {
			return report, err
		}
	}
	s.markDelivered(ctx, target, report)
	return report, nil
}

// drain posts every item of one status, course by course in ascending id
// order, halting a course on its first failed batch.
func (s *Service) drain(ctx context.Context, poster Poster, target, status int, report *FlushReport) error {
	courseIDs, err := s.courses(target, status)
	if err != nil {
		return err
	}

	for _, courseID := range courseIDs {
		report.Courses = append(report.Courses, courseID)
		for i := 0; i < maxFlushBatches; i++ {
			batch, err := s.nextBatch(target, courseID, status)
			if err != nil {
				return err
			}
			if len(batch) == 0 {
				break
			}
			if err := s.deliver(ctx, poster, batch); err != nil {
				report.Failed += len(batch)
				s.log.WithFields(logrus.Fields{
					"target": target,
					"course": courseID,
					"items":  len(batch),
				}).WithError(err).Warn("Batch delivery failed, course halted for this pass")
				break
			}
			report.Sent += len(batch)
			report.Batches++
		}
	}
	return nil
}

// Clear drops every item of one target, optionally scoped to one course.
func (s *Service) Clear(target int, courseID ...int64) (int64, error) {
	q := s.db.Where("lrs = ?", target)
	if len(courseID) > 0 {
		q = q.Where("course_id = ?", courseID[0])
	}
	res := q.Delete(&Item{})
	return res.RowsAffected, res.Error
}

// ClearErrors drops the errored items of one target together with the
// delivery log entries that recorded their failures.
func (s *Service) ClearErrors(target int) (int64, error) {
	var dropped int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.
			Where("lrs = ? AND status IN ?", target, []int{StatusErrorTransport, StatusErrorRemote}).
			Delete(&Item{})
		if res.Error != nil {
			return res.Error
		}
		dropped = res.RowsAffected
		if s.errors != nil {
			return s.errors.ClearDelivery(tx, target)
		}
		return nil
	})
	return dropped, err
}

// LastDelivery returns the recorded time of the last successful delivery.
func (s *Service) LastDelivery(ctx context.Context, target int) (time.Time, bool) {
	if s.rdb == nil {
		return time.Time{}, false
	}
	raw, err := s.rdb.Get(ctx, lastSentPrefix+fmt.Sprint(target)).Result()
	if err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	return t, err == nil
}

func (s *Service) courses(target, status int) ([]int64, error) {
	var ids []int64
	err := s.db.Model(&Item{}).
		Distinct("course_id").
		Where("lrs = ? AND status = ?", target, status).
		Order("course_id asc").
		Pluck("course_id", &ids).Error
	return ids, err
}

func (s *Service) nextBatch(target int, courseID int64, status int) ([]Item, error) {
	var batch []Item
	err := s.db.
		Where("lrs = ? AND course_id = ? AND status = ?", target, courseID, status).
		Order("id asc").
		Limit(s.batchSize).
		Find(&batch).Error
	return batch, err
}

func (s *Service) deliver(ctx context.Context, poster Poster, batch []Item) error {
	statements := make([]json.RawMessage, len(batch))
	ids := make([]int64, len(batch))
	for i, item := range batch {
		statements[i] = json.RawMessage(item.Statement)
		ids[i] = item.ID
	}

	_, err := poster.PostStatements(ctx, statements)
	if err == nil {
		return s.db.Delete(&Item{}, ids).Error
	}

	status := StatusErrorTransport
	kind := errorlog.KindTransport
	code := 0
	var remote *lrs.RemoteError
	if errors.As(err, &remote) {
		status = StatusErrorRemote
		kind = errorlog.KindRemote
		code = remote.Status
	}
	update := s.db.Model(&Item{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"status":     status,
			"attempts":   gorm.Expr("attempts + 1"),
			"error_code": code,
			"last_error": err.Error(),
		})
	if update.Error != nil {
		return fmt.Errorf("mark failed batch: %v (after %w)", update.Error, err)
	}
	if s.errors != nil {
		entry := &errorlog.Entry{
			Kind:     kind,
			CourseID: batch[0].CourseID,
			LRS:      batch[0].LRS,
			Code:     code,
			Detail:   err.Error(),
		}
		if logErr := s.errors.Add(entry); logErr != nil {
			s.log.WithError(logErr).Warn("Could not record delivery failure")
		}
	}
	return err
}

func (s *Service) markDelivered(ctx context.Context, target int, report *FlushReport) {
	if report.Sent > 0 && s.rdb != nil {
		s.rdb.Set(ctx, lastSentPrefix+fmt.Sprint(target), time.Now().UTC().Format(time.RFC3339), 0)
	}
}

func (s *Service) lock(ctx context.Context, target int) (func(), bool, error) {
	if s.rdb == nil {
		return func() {}, true, nil
	}
	key := flushLockPrefix + fmt.Sprint(target)
	ok, err := s.rdb.SetNX(ctx, key, "1", flushLockTTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire flush lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return func() { s.rdb.Del(context.Background(), key) }, true, nil
}
