package scanner

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
)

// maxScanPasses bounds the batch loop of one scan, so a course with a huge
// backlog yields to the scheduler instead of monopolizing it. The cursor
// persists between scans; the next run simply picks up where this one left.
const maxScanPasses = 100

// Scanner reconciles platform state into the delivery queue: activity log
// rows for courses in logs mode, and SCORM progress for courses with SCORM
// tracking on. Every batch advances its cursor in the same transaction
// that enqueues the statements.
type Scanner struct {
	db        *gorm.DB
	repo      *platform.Repository
	cfg       *config.Config
	courses   *config.Courses
	queue     *queue.Service
	errors    *errorlog.Service
	store     *modeler.TemplateStore
	batchSize int
	log       *logrus.Entry
}

func New(db *gorm.DB, repo *platform.Repository, cfg *config.Config, courses *config.Courses, q *queue.Service, errs *errorlog.Service, store *modeler.TemplateStore) *Scanner {
	batchSize := cfg.QueueBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Scanner{
		db:        db,
		repo:      repo,
		cfg:       cfg,
		courses:   courses,
		queue:     q,
		errors:    errs,
		store:     store,
		batchSize: batchSize,
		log:       logger.Component("scanner"),
	}
}

func (s *Scanner) AutoMigrate() error {
	return s.db.AutoMigrate(&LogStatus{}, &ScormStatus{}, &ScoStatus{})
}

// Report accumulates the results of one scan.
type Report struct {
	Courses    int `json:"courses"`
	Statements int `json:"statements"`
	Ignored    int `json:"ignored"`
	Failed     int `json:"failed"`
}

func (r *Report) add(res *converter.Result) {
	r.Statements += res.Modeled
	r.Ignored += res.Ignored
	r.Failed += res.Failed
}

// ScanAll runs the log and SCORM scans for every configured course. A
// failing course is logged and skipped; one broken course must not starve
// the others.
func (s *Scanner) ScanAll(ctx context.Context) *Report {
	report := &Report{}

	// System events (logins, logouts) live in the log with course id 0.
	if sys := s.courses.System; sys.EventsMode == config.EventsModeLogs && sys.LRS != config.LRSNo {
		if _, ok := s.cfg.TargetConfig(sys.LRS); ok {
			system := config.CourseConfig{LRS: sys.LRS, EventsMode: sys.EventsMode, LogsFrom: sys.LogsFrom}
			if err := s.ScanLogs(ctx, system, report); err != nil {
				s.log.WithError(err).Error("System log scan failed")
			}
		}
	}

	for _, course := range s.courses.All() {
		if course.LRS == config.LRSNo {
			continue
		}
		if _, ok := s.cfg.TargetConfig(course.LRS); !ok {
			continue
		}
		report.Courses++
		if course.EventsMode == config.EventsModeLogs {
			if err := s.ScanLogs(ctx, course, report); err != nil {
				s.log.WithField("course", course.CourseID).WithError(err).Error("Log scan failed")
			}
		}
		if course.Scorm {
			if err := s.ScanScorm(ctx, course, report); err != nil {
				s.log.WithField("course", course.CourseID).WithError(err).Error("SCORM scan failed")
			}
		}
	}
	return report
}

// newConverter assembles a fresh modeling pipeline. Entity memoization is
// scoped to it, so each scan pass sees current platform state.
func (s *Scanner) newConverter() *converter.Converter {
	resolver := activities.NewResolver(s.repo, s.cfg.ActivitiesBase)
	actors := activities.NewActors(s.repo, s.db, s.cfg)
	return converter.New(modeler.New(s.store, s.repo, resolver, actors), s.errors)
}
