package observer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/openlearn/xapi-agent/pkg/common/config"
	"github.com/openlearn/xapi-agent/pkg/errorlog"
	"github.com/openlearn/xapi-agent/pkg/lrs"
	"github.com/openlearn/xapi-agent/pkg/modeler"
	"github.com/openlearn/xapi-agent/pkg/platform"
	"github.com/openlearn/xapi-agent/pkg/queue"
)

type capturePoster struct {
	sent int
	fail bool
}

func (p *capturePoster) PostStatements(ctx context.Context, statements []json.RawMessage) (*lrs.Response, error) {
	if p.fail {
		return nil, &lrs.TransportError{Err: context.DeadlineExceeded}
	}
	p.sent += len(statements)
	return &lrs.Response{Status: 200}, nil
}

func newObserver(t *testing.T, poster queue.Poster) (*Observer, *queue.Service) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	repo := platform.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		t.Fatal(err)
	}
	if err := db.Create(&platform.User{ID: 1, Username: "jdoe"}).Error; err != nil {
		t.Fatal(err)
	}
	if err := db.Create(&platform.Course{ID: 10, FullName: "Biology 101", Lang: "en"}).Error; err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		ActivitiesBase: "http://vle.example.com",
		ActorsHomepage: "http://vle.example.com",
		ActorsIDMode:   config.ActorsIDUsername,
		QueueBatchSize: 100,
		LRS:            config.LRSConfig{Endpoint: "http://lrs.example.com/xapi"},
	}
	courses := &config.Courses{
		Courses: []config.CourseConfig{
			{CourseID: 10, LRS: config.LRSProduction, EventsMode: config.EventsModeLive},
			{CourseID: 11, LRS: config.LRSProduction, EventsMode: config.EventsModeLogs},
		},
	}

	errs := errorlog.NewService(db)
	if err := errs.AutoMigrate(); err != nil {
		t.Fatal(err)
	}
	q := queue.NewService(db, nil, map[int]queue.Poster{config.LRSProduction: poster}, errs, 100)
	if err := q.AutoMigrate(); err != nil {
		t.Fatal(err)
	}

	return New(db, repo, cfg, courses, q, errs, modeler.NewTemplateStore("")), q
}

func liveEvent(courseID int64) modeler.Event {
	return modeler.Event{
		ID: 100, Name: "course_viewed", UserID: 1, CourseID: courseID,
		ContextLevel: platform.ContextCourse, ContextInstanceID: courseID,
		CreatedAt: time.Now(),
	}
}

func TestHandleDeliversLiveEvent(t *testing.T) {
	poster := &capturePoster{}
	obs, _ := newObserver(t, poster)

	if err := obs.Handle(context.Background(), liveEvent(10)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if poster.sent != 1 {
		t.Errorf("delivered %d statements, want 1", poster.sent)
	}
}

func TestHandleSkipsNonLiveCourse(t *testing.T) {
	poster := &capturePoster{}
	obs, q := newObserver(t, poster)

	// course 11 is in logs mode, the scanner owns it
	if err := obs.Handle(context.Background(), liveEvent(11)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	sizes, _ := q.Size(config.LRSProduction)
	if poster.sent != 0 || sizes[queue.StatusPending] != 0 {
		t.Errorf("logs-mode event was captured live: sent=%d sizes=%v", poster.sent, sizes)
	}

	// unknown course
	if err := obs.Handle(context.Background(), liveEvent(99)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if poster.sent != 0 {
		t.Errorf("unknown course event delivered")
	}
}

func TestHandleKeepsStatementOnFlushFailure(t *testing.T) {
	poster := &capturePoster{fail: true}
	obs, q := newObserver(t, poster)

	if err := obs.Handle(context.Background(), liveEvent(10)); err != nil {
		t.Fatalf("handle must swallow flush errors, got %v", err)
	}
	sizes, _ := q.Size(config.LRSProduction)
	if sizes[queue.StatusErrorTransport] != 1 {
		t.Errorf("sizes = %v, want the statement kept as transport error", sizes)
	}
}
