package scanner

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/openlearn/xapi-agent/pkg/converter"
	"github.com/openlearn/xapi-agent/pkg/errorlog"
	"github.com/openlearn/xapi-agent/pkg/modeler"
	"github.com/openlearn/xapi-agent/pkg/platform"
)

// ReplayReport summarizes one replay of the modeling error log.
type ReplayReport struct {
	Replayed   int `json:"replayed"`
	Recovered  int `json:"recovered"`
	Dropped    int `json:"dropped"`
	StillBroke int `json:"still_broken"`
}

// Replay re-models the records behind logged modeling failures, typically
// after a broken custom template was fixed. Each processed entry is
// removed; records that still fail re-file themselves, so the log never
// grows a duplicate. Entries added during the replay are left for the
// next one.
func (s *Scanner) Replay(ctx context.Context) (*ReplayReport, error) {
	report := &ReplayReport{}

	snapshot, err := s.errors.LastID()
	if err != nil {
		return nil, err
	}
	if snapshot == 0 {
		return report, nil
	}

	conv := s.newConverter()
	afterID := int64(0)

	for pass := 0; pass < maxScanPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		entries, err := s.errors.Batch(errorlog.KindModeling, afterID, s.batchSize)
		if err != nil {
			return report, err
		}
		done := false
		for i := range entries {
			entry := &entries[i]
			if entry.ID > snapshot {
				done = true
				break
			}
			afterID = entry.ID
			if err := s.replayEntry(conv, entry, report); err != nil {
				return report, err
			}
		}
		if done || len(entries) < s.batchSize {
			return report, nil
		}
	}
	return report, nil
}

func (s *Scanner) replayEntry(conv *converter.Converter, entry *errorlog.Entry, report *ReplayReport) error {
	report.Replayed++

	res, err := s.remodel(conv, entry)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			// The source row is gone, nothing left to recover.
			report.Dropped++
			return s.errors.Delete([]int64{entry.ID})
		}
		return err
	}

	switch {
	case res.Failed > 0:
		report.StillBroke++
	case res.Modeled > 0:
		report.Recovered += res.Modeled
	default:
		report.Dropped++
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.queue.Enqueue(tx, entry.LRS, entry.CourseID, res.Statements); err != nil {
			return err
		}
		return tx.Delete(&errorlog.Entry{}, entry.ID).Error
	})
}

func (s *Scanner) remodel(conv *converter.Converter, entry *errorlog.Entry) (*converter.Result, error) {
	switch entry.SourceKind {
	case errorlog.SourceEvent:
		row, err := s.repo.Log(entry.SourceID)
		if err != nil {
			return nil, err
		}
		return conv.Events(entry.CourseID, entry.LRS, []modeler.Event{converter.EventFromLog(row)})

	case errorlog.SourceAttempt, errorlog.SourceInteraction:
		row, err := s.repo.ScoValueRowByID(entry.SourceID)
		if err != nil {
			return nil, err
		}
		valueRows, err := s.repo.AttemptValues(row.AttemptID, row.ScoID)
		if err != nil {
			return nil, err
		}
		values := make(map[string]string, len(valueRows))
		for _, v := range valueRows {
			values[v.Element] = v.Value
		}
		attempt := modeler.Attempt{
			ValueID:   row.ValueID,
			AttemptID: row.AttemptID,
			ScoID:     row.ScoID,
			ModuleID:  row.ModuleID,
			CourseID:  row.CourseID,
			UserID:    row.UserID,
			Values:    values,
			Timestamp: row.ModifiedAt,
		}
		if entry.SourceKind == errorlog.SourceInteraction {
			return conv.Interactions(entry.CourseID, entry.LRS, &attempt, modeler.GroupInteractions(values))
		}
		return conv.Attempts(entry.CourseID, entry.LRS, []modeler.Attempt{attempt}, entry.Stage)
	}
	return nil, fmt.Errorf("replay: unknown source kind %d", entry.SourceKind)
}
