package observer

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/openlearn/xapi-agent/pkg/activities"
	"github.com/openlearn/xapi-agent/pkg/common/config"
	"github.com/openlearn/xapi-agent/pkg/common/logger"
	"github.com/openlearn/xapi-agent/pkg/converter"
	"github.com/openlearn/xapi-agent/pkg/errorlog"
	"github.com/openlearn/xapi-agent/pkg/modeler"
	"github.com/openlearn/xapi-agent/pkg/platform"
	"github.com/openlearn/xapi-agent/pkg/queue"
	"github.com/openlearn/xapi-agent/pkg/selector"
)

// Observer handles live platform events for courses in live capture mode.
// Events are modeled and queued as they arrive, followed by an
// opportunistic flush. Everything here is best-effort: an event that slips
// through is picked up by the log scanner of a later run, so no failure
// is allowed to crash the consumer loop.
type Observer struct {
	db      *gorm.DB
	repo    *platform.Repository
	cfg     *config.Config
	courses *config.Courses
	queue   *queue.Service
	errors  *errorlog.Service
	store   *modeler.TemplateStore
	log     *logrus.Entry
}

func New(db *gorm.DB, repo *platform.Repository, cfg *config.Config, courses *config.Courses, q *queue.Service, errs *errorlog.Service, store *modeler.TemplateStore) *Observer {
	return &Observer{
		db:      db,
		repo:    repo,
		cfg:     cfg,
		courses: courses,
		queue:   q,
		errors:  errs,
		store:   store,
		log:     logger.Component("observer"),
	}
}

// Handle processes one live event. It always returns nil; the consumer
// commits regardless and the log scanner covers the gaps.
func (o *Observer) Handle(ctx context.Context, event modeler.Event) error {
	if !selector.Selected(event.Name) {
		return nil
	}
	target, ok := o.target(event)
	if !ok {
		return nil
	}
	if _, configured := o.cfg.TargetConfig(target); !configured {
		return nil
	}

	resolver := activities.NewResolver(o.repo, o.cfg.ActivitiesBase)
	actors := activities.NewActors(o.repo, o.db, o.cfg)
	conv := converter.New(modeler.New(o.store, o.repo, resolver, actors), o.errors)

	res, err := conv.Events(event.CourseID, target, []modeler.Event{event})
	if err != nil {
		o.log.WithError(err).WithField("event_id", event.ID).Warn("Live event conversion failed")
		return nil
	}
	if len(res.Statements) == 0 {
		return nil
	}

	if err := o.queue.Enqueue(nil, target, event.CourseID, res.Statements); err != nil {
		o.log.WithError(err).WithField("event_id", event.ID).Warn("Live event enqueue failed")
		return nil
	}

	if _, err := o.queue.Flush(ctx, target); err != nil {
		o.log.WithError(err).WithField("target", target).Debug("Opportunistic flush failed, queue keeps the statements")
	}
	return nil
}

// target picks the LRS for an event: the owning course's configuration,
// or the system configuration for course-less events.
func (o *Observer) target(event modeler.Event) (int, bool) {
	if event.CourseID == 0 {
		sys := o.courses.System
		if sys.EventsMode != config.EventsModeLive || sys.LRS == config.LRSNo {
			return 0, false
		}
		return sys.LRS, true
	}
	course, ok := o.courses.Course(event.CourseID)
	if !ok || course.EventsMode != config.EventsModeLive || course.LRS == config.LRSNo {
		return 0, false
	}
	return course.LRS, true
}
