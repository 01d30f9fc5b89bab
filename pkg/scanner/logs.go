package scanner

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/openlearn/xapi-agent/pkg/common/config"
	"github.com/openlearn/xapi-agent/pkg/converter"
	"github.com/openlearn/xapi-agent/pkg/modeler"
)

// ScanLogs replays the activity log of one course in logs mode. Each batch
// is converted and enqueued, and the cursor advanced, in one transaction:
// either the statements and the new watermark both land, or neither does.
func (s *Scanner) ScanLogs(ctx context.Context, course config.CourseConfig, report *Report) error {
	target := course.LRS

	var status LogStatus
	err := s.db.
		Where(LogStatus{CourseID: course.CourseID, LRS: target}).
		FirstOrCreate(&status).Error
	if err != nil {
		return fmt.Errorf("log status for course %d: %w", course.CourseID, err)
	}

	conv := s.newConverter()
	floor := course.LogsFloor()

	for pass := 0; pass < maxScanPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := s.repo.Logs(course.CourseID, status.LastLogID, floor, s.batchSize)
		if err != nil {
			return fmt.Errorf("read logs of course %d: %w", course.CourseID, err)
		}
		if len(rows) == 0 {
			return nil
		}

		events := make([]modeler.Event, len(rows))
		for i := range rows {
			events[i] = converter.EventFromLog(&rows[i])
		}
		res, err := conv.Events(course.CourseID, target, events)
		if err != nil {
			return err
		}

		status.LastLogID = rows[len(rows)-1].ID
		err = s.db.Transaction(func(tx *gorm.DB) error {
			if err := s.queue.Enqueue(tx, target, course.CourseID, res.Statements); err != nil {
				return err
			}
			return tx.Save(&status).Error
		})
		if err != nil {
			return fmt.Errorf("commit log batch of course %d: %w", course.CourseID, err)
		}
		report.add(res)

		if len(rows) < s.batchSize {
			return nil
		}
	}
	return nil
}
