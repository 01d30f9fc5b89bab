package converter

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/openlearn/xapi-agent/pkg/common/logger"
	"github.com/openlearn/xapi-agent/pkg/errorlog"
	"github.com/openlearn/xapi-agent/pkg/modeler"
	"github.com/openlearn/xapi-agent/pkg/platform"
	"github.com/openlearn/xapi-agent/pkg/selector"
)

// Result is the outcome of converting one batch of source records. The
// statements preserve the order of their source records; failed records are
// dropped from the batch after being logged, they never block it.
type Result struct {
	Statements []map[string]any
	Modeled    int
	Ignored    int
	Failed     int
}

// Converter runs batches of source records through the modeler and files
// the failures. One converter serves one (course, target) pass.
type Converter struct {
	modeler *modeler.Modeler
	errors  *errorlog.Service
	log     *logrus.Entry
}

func New(m *modeler.Modeler, errors *errorlog.Service) *Converter {
	return &Converter{
		modeler: m,
		errors:  errors,
		log:     logger.Component("converter"),
	}
}

// Events converts platform events. Unselected events count as ignored.
func (c *Converter) Events(courseID int64, target int, events []modeler.Event) (*Result, error) {
	res := &Result{}
	for i := range events {
		ev := &events[i]
		if !selector.Selected(ev.Name) {
			res.Ignored++
			continue
		}
		outcome := c.modeler.ModelEvent(ev)
		if err := c.collect(res, outcome, courseID, target, errorlog.SourceEvent, ev.ID, ""); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Attempts converts SCORM attempt records for one stage.
func (c *Converter) Attempts(courseID int64, target int, attempts []modeler.Attempt, stage string) (*Result, error) {
	res := &Result{}
	for i := range attempts {
		at := &attempts[i]
		outcome := c.modeler.ModelAttempt(at, stage)
		if err := c.collect(res, outcome, courseID, target, errorlog.SourceAttempt, at.ValueID, stage); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Interactions converts the interaction sub-records of one attempt.
func (c *Converter) Interactions(courseID int64, target int, attempt *modeler.Attempt, interactions []modeler.Interaction) (*Result, error) {
	res := &Result{}
	for i := range interactions {
		it := &interactions[i]
		outcome := c.modeler.ModelInteraction(attempt, it)
		if err := c.collect(res, outcome, courseID, target, errorlog.SourceInteraction, attempt.ValueID, modeler.StageInteracted); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (c *Converter) collect(res *Result, outcome modeler.Outcome, courseID int64, target int, sourceKind int, sourceID int64, stage string) error {
	switch outcome.Error {
	case modeler.ErrorNone:
		res.Statements = append(res.Statements, outcome.Statement)
		res.Modeled++
		return nil
	case modeler.ErrorIgnored:
		res.Ignored++
		return nil
	}

	res.Failed++
	detail := ""
	if outcome.Cause != nil {
		detail = outcome.Cause.Error()
	}
	c.log.WithFields(logrus.Fields{
		"course":   courseID,
		"target":   target,
		"error":    outcome.Error.String(),
		"source":   sourceKind,
		"sourceId": sourceID,
		"template": outcome.Template,
	}).Warn("Record could not be modeled")

	if c.errors == nil {
		return nil
	}
	err := c.errors.Add(&errorlog.Entry{
		Kind:       errorlog.KindModeling,
		Error:      outcome.Error.String(),
		SourceKind: sourceKind,
		SourceID:   sourceID,
		Stage:      stage,
		CourseID:   courseID,
		LRS:        target,
		Template:   outcome.Template,
		Detail:     detail,
	})
	if err != nil {
		return fmt.Errorf("record modeling failure: %w", err)
	}
	return nil
}

// EventFromLog adapts one platform log row to a modeler event.
func EventFromLog(row *platform.LogEntry) modeler.Event {
	return modeler.Event{
		ID:                row.ID,
		Name:              row.EventName,
		UserID:            row.UserID,
		CourseID:          row.CourseID,
		ContextLevel:      row.ContextLevel,
		ContextInstanceID: row.ContextInstanceID,
		RelatedUserID:     row.RelatedUserID,
		Other:             row.Other,
		CreatedAt:         row.CreatedAt,
	}
}
