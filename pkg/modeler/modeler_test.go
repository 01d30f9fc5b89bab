package modeler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/openlearn/xapi-agent/pkg/activities"
	"github.com/openlearn/xapi-agent/pkg/common/config"
	"github.com/openlearn/xapi-agent/pkg/platform"
)

func testConfig() *config.Config {
	return &config.Config{
		ActivitiesBase: "http://vle.example.com",
		ActorsHomepage: "http://vle.example.com",
		ActorsIDMode:   config.ActorsIDUsername,
	}
}

func testModeler(t *testing.T) (*Modeler, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	repo := platform.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("migrate platform tables: %v", err)
	}

	seed := []interface{}{
		&platform.User{ID: 1, Username: "jdoe", Email: "jdoe@example.com", FirstName: "Jane", LastName: "Doe"},
		&platform.User{ID: 2, Username: "teacher", Email: "teacher@example.com"},
		&platform.Course{ID: 10, FullName: "Biology 101", Lang: "en"},
		&platform.Module{ID: 20, CourseID: 10, Component: "mod_quiz", Name: "Final quiz",
			GradeType: platform.GradeTypeValue, GradeMin: 0, GradeMax: 10, GradePass: 5},
		&platform.Module{ID: 21, CourseID: 10, Component: "mod_scorm", Name: "Safety training"},
		&platform.Sco{ID: 30, ModuleID: 21, Name: "Unit 1", Identifier: "unit-1"},
		&platform.ScormAttempt{ID: 40, UserID: 1, ModuleID: 21, Number: 1},
	}
	for _, row := range seed {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("seed %T: %v", row, err)
		}
	}

	cfg := testConfig()
	actors := activities.NewActors(repo, db, cfg)
	if err := actors.AutoMigrate(); err != nil {
		t.Fatalf("migrate actors table: %v", err)
	}
	resolver := activities.NewResolver(repo, cfg.ActivitiesBase)
	return New(NewTemplateStore(""), repo, resolver, actors), db
}

func TestPreflight(t *testing.T) {
	if err := Preflight(NewTemplateStore("")); err != nil {
		t.Fatalf("preflight of the embedded bundle failed: %v", err)
	}
}

func TestModelCourseViewed(t *testing.T) {
	m, _ := testModeler(t)
	ev := &Event{
		ID: 100, Name: "course_viewed", UserID: 1, CourseID: 10,
		ContextLevel: platform.ContextCourse, ContextInstanceID: 10,
		CreatedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}

	out := m.ModelEvent(ev)
	if !out.OK() {
		t.Fatalf("outcome = %v (%v)", out.Error, out.Cause)
	}

	st := out.Statement
	actor := st["actor"].(map[string]any)
	account := actor["account"].(map[string]any)
	if account["name"] != "jdoe" {
		t.Errorf("actor account name = %v, want jdoe", account["name"])
	}
	if account["homePage"] != "http://vle.example.com/username" {
		t.Errorf("actor homePage = %v", account["homePage"])
	}

	object := st["object"].(map[string]any)
	if object["id"] != "http://vle.example.com/xapi/activities/course/10" {
		t.Errorf("object id = %v", object["id"])
	}
	def := object["definition"].(map[string]any)
	if _, present := def["extensions"]; present {
		t.Error("extensions should be dropped when the course has no external id")
	}
	if st["timestamp"] != "2026-03-01T09:30:00Z" {
		t.Errorf("timestamp = %v", st["timestamp"])
	}

	// same record, same statement id
	again := m.ModelEvent(ev)
	if st["id"] != again.Statement["id"] {
		t.Errorf("statement id not deterministic: %v vs %v", st["id"], again.Statement["id"])
	}
}

func TestModelUnknownEvent(t *testing.T) {
	m, _ := testModeler(t)
	out := m.ModelEvent(&Event{ID: 1, Name: "cache_flushed"})
	if out.Error != ErrorNoModeler {
		t.Fatalf("outcome = %v, want modeler-not-found", out.Error)
	}
}

func TestModelComponentModuleViewed(t *testing.T) {
	m, _ := testModeler(t)
	out := m.ModelEvent(&Event{
		ID: 101, Name: "quiz_course_module_viewed", UserID: 1, CourseID: 10,
		ContextLevel: platform.ContextModule, ContextInstanceID: 20,
		CreatedAt: time.Now(),
	})
	if !out.OK() {
		t.Fatalf("outcome = %v (%v)", out.Error, out.Cause)
	}
	object := out.Statement["object"].(map[string]any)
	if object["id"] != "http://vle.example.com/xapi/activities/mod_quiz/20" {
		t.Errorf("object id = %v", object["id"])
	}
}

func TestModelGradedScored(t *testing.T) {
	m, _ := testModeler(t)
	ev := &Event{
		ID: 102, Name: "user_graded", UserID: 2, RelatedUserID: 1, CourseID: 10,
		ContextLevel: platform.ContextModule, ContextInstanceID: 20,
		Other:     `{"itemid":7,"finalgrade":"8","overridden":"0"}`,
		CreatedAt: time.Now(),
	}
	out := m.ModelEvent(ev)
	if !out.OK() {
		t.Fatalf("outcome = %v (%v)", out.Error, out.Cause)
	}
	if out.Template != "core/course_module_scored" {
		t.Errorf("template = %v", out.Template)
	}

	st := out.Statement
	verb := st["verb"].(map[string]any)
	if verb["id"] != "http://adlnet.gov/expapi/verbs/passed" {
		t.Errorf("verb = %v, want passed (8 >= pass 5)", verb["id"])
	}
	// the learner is the actor, the grader the instructor
	actorName := st["actor"].(map[string]any)["account"].(map[string]any)["name"]
	if actorName != "jdoe" {
		t.Errorf("actor = %v, want the graded user", actorName)
	}
	instructor := st["context"].(map[string]any)["instructor"].(map[string]any)
	if instructor["account"].(map[string]any)["name"] != "teacher" {
		t.Errorf("instructor = %v", instructor)
	}

	result := st["result"].(map[string]any)
	score := result["score"].(map[string]any)
	if score["raw"] != 8.0 || score["min"] != 0.0 || score["max"] != 10.0 || score["scaled"] != 0.8 {
		t.Errorf("score = %v", score)
	}
	if result["success"] != true {
		t.Errorf("success = %v, want true", result["success"])
	}
}

func TestModelGradedVoided(t *testing.T) {
	m, _ := testModeler(t)
	scored := m.ModelEvent(&Event{
		ID: 103, Name: "user_graded", UserID: 2, RelatedUserID: 1, CourseID: 10,
		ContextLevel: platform.ContextModule, ContextInstanceID: 20,
		Other: `{"finalgrade":"8"}`, CreatedAt: time.Now(),
	})
	if !scored.OK() {
		t.Fatalf("scored outcome = %v (%v)", scored.Error, scored.Cause)
	}

	voided := m.ModelEvent(&Event{
		ID: 104, Name: "user_graded", UserID: 2, RelatedUserID: 1, CourseID: 10,
		ContextLevel: platform.ContextModule, ContextInstanceID: 20,
		Other: `{"finalgrade":null}`, CreatedAt: time.Now(),
	})
	if !voided.OK() {
		t.Fatalf("voided outcome = %v (%v)", voided.Error, voided.Cause)
	}
	if voided.Template != "core/course_module_voided_score" {
		t.Errorf("template = %v", voided.Template)
	}

	ref := voided.Statement["object"].(map[string]any)
	if ref["objectType"] != "StatementRef" {
		t.Fatalf("object = %v, want a StatementRef", ref)
	}
	if ref["id"] != scored.Statement["id"] {
		t.Errorf("voided ref %v does not match scored statement id %v", ref["id"], scored.Statement["id"])
	}
	if voided.Statement["id"] == scored.Statement["id"] {
		t.Error("voiding statement must carry its own id")
	}
}

func TestModelGradedIgnored(t *testing.T) {
	m, _ := testModeler(t)
	out := m.ModelEvent(&Event{
		ID: 105, Name: "user_graded", UserID: 2, RelatedUserID: 1, CourseID: 10,
		ContextLevel: platform.ContextCourse, ContextInstanceID: 10,
		Other: `{"finalgrade":"8"}`, CreatedAt: time.Now(),
	})
	if out.Error != ErrorIgnored {
		t.Fatalf("outcome = %v, want ignored for a non-module grade", out.Error)
	}
	if out.Cause != nil {
		t.Errorf("ignored outcome must not carry a cause, got %v", out.Cause)
	}
}

func TestModelAttemptAssessed(t *testing.T) {
	m, _ := testModeler(t)
	attempt := &Attempt{
		ValueID: 500, AttemptID: 40, ScoID: 30, ModuleID: 21, CourseID: 10, UserID: 1,
		Values: map[string]string{
			"cmi.score.raw":         "15",
			"cmi.score.min":         "0",
			"cmi.score.max":         "20",
			"cmi.success_status":    "passed",
			"cmi.total_time":        "00:30:00",
			"cmi.completion_status": "completed",
		},
		Timestamp: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}

	out := m.ModelAttempt(attempt, StageAssessed)
	if !out.OK() {
		t.Fatalf("outcome = %v (%v)", out.Error, out.Cause)
	}

	st := out.Statement
	if st["verb"].(map[string]any)["id"] != "http://adlnet.gov/expapi/verbs/passed" {
		t.Errorf("verb = %v", st["verb"])
	}
	result := st["result"].(map[string]any)
	score := result["score"].(map[string]any)
	if score["raw"] != 15 || score["min"] != 0 || score["max"] != 20 {
		t.Errorf("score = %v, want integer raw/min/max", score)
	}
	if score["scaled"] != 0.75 {
		t.Errorf("scaled = %v, want 0.75", score["scaled"])
	}
	if result["duration"] != "PT30M0S" {
		t.Errorf("duration = %v", result["duration"])
	}
	if st["object"].(map[string]any)["id"] != "http://vle.example.com/xapi/activities/sco/30" {
		t.Errorf("object id = %v", st["object"])
	}
}

func TestModelAttemptLegacyElements(t *testing.T) {
	m, _ := testModeler(t)
	attempt := &Attempt{
		ValueID: 501, AttemptID: 40, ScoID: 30, ModuleID: 21, CourseID: 10, UserID: 1,
		Values: map[string]string{
			"cmi.core.score.raw":     "40",
			"cmi.core.score.min":     "0",
			"cmi.core.score.max":     "50",
			"cmi.core.lesson_status": "failed",
		},
		Timestamp: time.Now(),
	}
	out := m.ModelAttempt(attempt, StageAssessed)
	if !out.OK() {
		t.Fatalf("outcome = %v (%v)", out.Error, out.Cause)
	}
	if out.Statement["verb"].(map[string]any)["id"] != "http://adlnet.gov/expapi/verbs/failed" {
		t.Errorf("verb = %v", out.Statement["verb"])
	}
	if out.Statement["result"].(map[string]any)["success"] != false {
		t.Errorf("success = %v, want false", out.Statement["result"])
	}
}

func TestModelInteraction(t *testing.T) {
	m, _ := testModeler(t)
	attempt := &Attempt{
		ValueID: 502, AttemptID: 40, ScoID: 30, ModuleID: 21, CourseID: 10, UserID: 1,
		Values:    map[string]string{},
		Timestamp: time.Now(),
	}
	it := &Interaction{
		Num: 0, Type: "choice", Description: "Pick the hazard",
		Response: "b", Result: "correct", Latency: "00:00:12",
	}
	out := m.ModelInteraction(attempt, it)
	if !out.OK() {
		t.Fatalf("outcome = %v (%v)", out.Error, out.Cause)
	}
	st := out.Statement
	object := st["object"].(map[string]any)
	if object["id"] != "http://vle.example.com/xapi/activities/sco/30/interactions/0" {
		t.Errorf("object id = %v", object["id"])
	}
	if object["definition"].(map[string]any)["interactionType"] != "choice" {
		t.Errorf("interactionType = %v", object["definition"])
	}
	result := st["result"].(map[string]any)
	if result["success"] != true || result["response"] != "b" || result["duration"] != "PT12S" {
		t.Errorf("result = %v", result)
	}
}

func TestModelStatementReceived(t *testing.T) {
	m, _ := testModeler(t)
	out := m.ModelEvent(&Event{
		ID: 106, Name: "statement_received", UserID: 1, CourseID: 10,
		ContextLevel: platform.ContextModule, ContextInstanceID: 20,
		Other: map[string]any{
			"statement": `{"actor":{"mbox":"mailto:spoofed@example.com"},"verb":{"id":"http://adlnet.gov/expapi/verbs/answered"},"object":{"id":"http://example.com/q1"}}`,
		},
		CreatedAt: time.Now(),
	})
	if !out.OK() {
		t.Fatalf("outcome = %v (%v)", out.Error, out.Cause)
	}
	st := out.Statement
	if st["id"] == nil || st["timestamp"] == nil {
		t.Error("pass-through statement must get id and timestamp")
	}
	// inbound actor is replaced with the agent's own identification
	actor := st["actor"].(map[string]any)
	if _, spoofed := actor["mbox"]; spoofed {
		t.Error("inbound actor should have been rewritten")
	}
	if actor["account"].(map[string]any)["name"] != "jdoe" {
		t.Errorf("actor = %v", actor)
	}
}

func TestCustomTemplateOverride(t *testing.T) {
	_, db := testModeler(t)
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "core"), 0o755); err != nil {
		t.Fatal(err)
	}
	custom := `{"id": "%statement_id", "actor": "%actor", "verb": {"id": "http://example.com/custom-verb"}, "object": {"id": "%course_iri"}, "timestamp": "%timestamp"}`
	if err := os.WriteFile(filepath.Join(dir, "core", "course_viewed.json"), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	repo := platform.NewRepository(db)
	m := New(NewTemplateStore(dir), repo, activities.NewResolver(repo, cfg.ActivitiesBase), activities.NewActors(repo, db, cfg))

	out := m.ModelEvent(&Event{
		ID: 107, Name: "course_viewed", UserID: 1, CourseID: 10,
		ContextLevel: platform.ContextCourse, ContextInstanceID: 10, CreatedAt: time.Now(),
	})
	if !out.OK() {
		t.Fatalf("outcome = %v (%v)", out.Error, out.Cause)
	}
	if out.Statement["verb"].(map[string]any)["id"] != "http://example.com/custom-verb" {
		t.Errorf("custom template not used: %v", out.Statement["verb"])
	}
}

func TestMalformedCustomTemplate(t *testing.T) {
	_, db := testModeler(t)
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "core"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "core", "course_viewed.json"), []byte(`{not json`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	repo := platform.NewRepository(db)
	m := New(NewTemplateStore(dir), repo, activities.NewResolver(repo, cfg.ActivitiesBase), activities.NewActors(repo, db, cfg))

	out := m.ModelEvent(&Event{
		ID: 108, Name: "course_viewed", UserID: 1, CourseID: 10,
		ContextLevel: platform.ContextCourse, ContextInstanceID: 10, CreatedAt: time.Now(),
	})
	if out.Error != ErrorBadTemplate {
		t.Fatalf("outcome = %v, want template-malformed", out.Error)
	}
	if !strings.Contains(out.Cause.Error(), "course_viewed") {
		t.Errorf("cause should name the template: %v", out.Cause)
	}
}

func TestEligibleStages(t *testing.T) {
	values := map[string]string{
		"x.start.time":           "1709290000",
		"cmi.core.lesson_status": "passed",
		"cmi.core.score.raw":     "9",
	}
	stages := EligibleStages(values)
	want := []string{StageLaunched, StageCompleted, StageAssessed}
	if len(stages) != len(want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("stages = %v, want %v", stages, want)
		}
	}
}

func TestGroupInteractions(t *testing.T) {
	values := map[string]string{
		"cmi.interactions.1.type":             "choice",
		"cmi.interactions.1.learner_response": "a",
		"cmi.interactions.1.result":           "wrong",
		"cmi.interactions.0.type":             "true-false",
		"cmi.interactions.0.result":           "correct",
		"interactions_2_type":                 "fill-in",
		"cmi.completion_status":               "completed",
	}
	out := GroupInteractions(values)
	if len(out) != 3 {
		t.Fatalf("groups = %d, want 3: %v", len(out), out)
	}
	if out[0].Num != 0 || out[0].Type != "true-false" || out[0].Result != "correct" {
		t.Errorf("interaction 0 = %+v", out[0])
	}
	if out[1].Num != 1 || out[1].Response != "a" {
		t.Errorf("interaction 1 = %+v", out[1])
	}
	if out[2].Num != 2 || out[2].Type != "fill-in" {
		t.Errorf("interaction 2 = %+v", out[2])
	}
}
