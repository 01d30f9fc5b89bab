package scanner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/openlearn/xapi-agent/pkg/common/config"
	"github.com/openlearn/xapi-agent/pkg/converter"
	"github.com/openlearn/xapi-agent/pkg/modeler"
	"github.com/openlearn/xapi-agent/pkg/platform"
)

type scoKey struct {
	attemptID int64
	scoID     int64
}

type scoGroup struct {
	key         scoKey
	moduleID    int64
	userID      int64
	lastValueID int64
	modifiedAt  time.Time
}

// ScanScorm reconciles the SCORM progress of one course through the stage
// machine. A (attempt, sco) pair moves launched, completed, assessed,
// interacted, one stage at a time and each at most once per target; the
// interacted stage is terminal.
func (s *Scanner) ScanScorm(ctx context.Context, course config.CourseConfig, report *Report) error {
	target := course.LRS

	var cursor ScormStatus
	err := s.db.
		Where(ScormStatus{CourseID: course.CourseID, LRS: target}).
		FirstOrCreate(&cursor).Error
	if err != nil {
		return fmt.Errorf("scorm status for course %d: %w", course.CourseID, err)
	}

	after := cursor.LastModifiedAt
	if floor := course.ScormFloor(); floor.After(after) {
		after = floor
		cursor.LastValueID = 0
	}

	conv := s.newConverter()

	for pass := 0; pass < maxScanPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := s.repo.ScoValues(course.CourseID, modeler.StageElements(), after, cursor.LastValueID, s.batchSize)
		if err != nil {
			return fmt.Errorf("read sco values of course %d: %w", course.CourseID, err)
		}
		if len(rows) == 0 {
			return nil
		}

		groups := groupRows(rows)
		var statements []map[string]any
		var statuses []*ScoStatus

		for _, group := range groups {
			status, stmts, res, err := s.advanceGroup(conv, course, target, group)
			if err != nil {
				return err
			}
			if res != nil {
				report.add(res)
			}
			statements = append(statements, stmts...)
			if status != nil {
				statuses = append(statuses, status)
			}
		}

		last := rows[len(rows)-1]
		cursor.LastModifiedAt = last.ModifiedAt
		cursor.LastValueID = last.ValueID
		err = s.db.Transaction(func(tx *gorm.DB) error {
			if err := s.queue.Enqueue(tx, target, course.CourseID, statements); err != nil {
				return err
			}
			for _, status := range statuses {
				if err := tx.Save(status).Error; err != nil {
					return err
				}
			}
			return tx.Save(&cursor).Error
		})
		if err != nil {
			return fmt.Errorf("commit scorm batch of course %d: %w", course.CourseID, err)
		}

		after = cursor.LastModifiedAt
		if len(rows) < s.batchSize {
			return nil
		}
	}
	return nil
}

// advanceGroup runs one (attempt, sco) pair through the stage machine and
// returns its new status row and the statements to enqueue.
func (s *Scanner) advanceGroup(conv *converter.Converter, course config.CourseConfig, target int, group *scoGroup) (*ScoStatus, []map[string]any, *converter.Result, error) {
	var status ScoStatus
	err := s.db.
		Where(ScoStatus{AttemptID: group.key.attemptID, ScoID: group.key.scoID, LRS: target}).
		FirstOrCreate(&status).Error
	if err != nil {
		return nil, nil, nil, fmt.Errorf("sco status %v: %w", group.key, err)
	}
	if status.Rank >= RankInteracted {
		return nil, nil, nil, nil
	}

	valueRows, err := s.repo.AttemptValues(group.key.attemptID, group.key.scoID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("attempt values %v: %w", group.key, err)
	}
	values := make(map[string]string, len(valueRows))
	for _, row := range valueRows {
		values[row.Element] = row.Value
	}

	attempt := modeler.Attempt{
		ValueID:   group.lastValueID,
		AttemptID: group.key.attemptID,
		ScoID:     group.key.scoID,
		ModuleID:  group.moduleID,
		CourseID:  course.CourseID,
		UserID:    group.userID,
		Values:    values,
		Timestamp: group.modifiedAt,
	}

	total := &converter.Result{}
	var statements []map[string]any
	advanced := false

	for _, stage := range modeler.EligibleStages(values) {
		rank := stageRanks[stage]
		if rank <= status.Rank {
			continue
		}
		// Stages advance one at a time. A value set with a gap, say
		// completion data but no recorded launch, stalls here until the
		// missing stage's values arrive.
		if rank != status.Rank+1 {
			break
		}
		var res *converter.Result
		if stage == modeler.StageInteracted {
			res, err = conv.Interactions(course.CourseID, target, &attempt, modeler.GroupInteractions(values))
		} else {
			res, err = conv.Attempts(course.CourseID, target, []modeler.Attempt{attempt}, stage)
		}
		if err != nil {
			return nil, nil, nil, err
		}
		statements = append(statements, res.Statements...)
		total.Statements = append(total.Statements, res.Statements...)
		total.Modeled += res.Modeled
		total.Ignored += res.Ignored
		total.Failed += res.Failed
		// The rank advances even when modeling failed: the failure sits
		// in the error log for replay, re-scanning it would only fail
		// the same way again.
		status.Rank = rank
		advanced = true
	}

	if !advanced {
		return nil, nil, total, nil
	}
	return &status, statements, total, nil
}

// groupRows folds value rows into one group per (attempt, sco) pair, in
// the order the pairs were first touched.
func groupRows(rows []platform.ScoValueRow) []*scoGroup {
	byKey := make(map[scoKey]*scoGroup)
	for _, row := range rows {
		key := scoKey{attemptID: row.AttemptID, scoID: row.ScoID}
		group, ok := byKey[key]
		if !ok {
			group = &scoGroup{key: key, moduleID: row.ModuleID, userID: row.UserID}
			byKey[key] = group
		}
		if row.ValueID > group.lastValueID {
			group.lastValueID = row.ValueID
		}
		if row.ModifiedAt.After(group.modifiedAt) {
			group.modifiedAt = row.ModifiedAt
		}
	}
	groups := make([]*scoGroup, 0, len(byKey))
	for _, group := range byKey {
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].lastValueID < groups[j].lastValueID })
	return groups
}
