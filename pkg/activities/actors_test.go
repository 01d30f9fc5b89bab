package activities

import (
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/openlearn/xapi-agent/pkg/common/config"
	"github.com/openlearn/xapi-agent/pkg/platform"
)

func testActors(t *testing.T, cfg *config.Config) (*Actors, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	repo := platform.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		t.Fatal(err)
	}
	err = db.Create(&platform.User{
		ID: 1, Username: "jdoe", Email: "jdoe@example.com",
		FirstName: "Jane", LastName: "Doe",
		Profile: datatypes.JSONMap{"employee_id": "E-1234"},
	}).Error
	if err != nil {
		t.Fatal(err)
	}
	actors := NewActors(repo, db, cfg)
	if err := actors.AutoMigrate(); err != nil {
		t.Fatal(err)
	}
	return actors, db
}

func baseConfig(mode string) *config.Config {
	return &config.Config{
		ActorsHomepage: "http://vle.example.com",
		ActorsIDMode:   mode,
	}
}

func TestActorUsernameMode(t *testing.T) {
	actors, _ := testActors(t, baseConfig(config.ActorsIDUsername))
	agent, err := actors.User(1)
	if err != nil {
		t.Fatal(err)
	}
	account := agent["account"].(map[string]any)
	if account["name"] != "jdoe" {
		t.Errorf("name = %v", account["name"])
	}
	if account["homePage"] != "http://vle.example.com/username" {
		t.Errorf("homePage = %v", account["homePage"])
	}
	if _, present := agent["name"]; present {
		t.Error("real name must not leak unless configured")
	}
}

func TestActorEmailMode(t *testing.T) {
	actors, _ := testActors(t, baseConfig(config.ActorsIDEmail))
	agent, err := actors.User(1)
	if err != nil {
		t.Fatal(err)
	}
	if agent["mbox"] != "mailto:jdoe@example.com" {
		t.Errorf("mbox = %v", agent["mbox"])
	}
}

func TestActorUUIDModeIsStable(t *testing.T) {
	cfg := baseConfig(config.ActorsIDUUID)
	actors, db := testActors(t, cfg)
	agent, err := actors.User(1)
	if err != nil {
		t.Fatal(err)
	}
	first := agent["account"].(map[string]any)["name"].(string)
	if first == "" {
		t.Fatal("empty uuid")
	}

	// a fresh resolver yields the same uuid from the mapping table
	repo := platform.NewRepository(db)
	again := NewActors(repo, db, cfg)
	agent, err = again.User(1)
	if err != nil {
		t.Fatal(err)
	}
	if got := agent["account"].(map[string]any)["name"].(string); got != first {
		t.Errorf("uuid changed between resolvers: %q vs %q", got, first)
	}
}

func TestActorCustomFieldPrecedence(t *testing.T) {
	cfg := baseConfig(config.ActorsIDUsername)
	cfg.ActorsIDCustomField = "employee_id"
	actors, _ := testActors(t, cfg)
	agent, err := actors.User(1)
	if err != nil {
		t.Fatal(err)
	}
	account := agent["account"].(map[string]any)
	if account["name"] != "E-1234" {
		t.Errorf("name = %v, want the profile field value", account["name"])
	}
}

func TestActorIncludeName(t *testing.T) {
	cfg := baseConfig(config.ActorsIDUsername)
	cfg.ActorsIncludeName = true
	actors, _ := testActors(t, cfg)
	agent, err := actors.User(1)
	if err != nil {
		t.Fatal(err)
	}
	if agent["name"] != "Jane Doe" {
		t.Errorf("name = %v", agent["name"])
	}
}

func TestResolverContextDispatch(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	repo := platform.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		t.Fatal(err)
	}
	if err := db.Create(&platform.Course{ID: 10, FullName: "Biology 101", Lang: "fr"}).Error; err != nil {
		t.Fatal(err)
	}
	if err := db.Create(&platform.Module{ID: 20, CourseID: 10, Component: "mod_forum", Name: "Discussions"}).Error; err != nil {
		t.Fatal(err)
	}

	r := NewResolver(repo, "http://vle.example.com")

	course, err := r.Context(platform.ContextCourse, 10)
	if err != nil {
		t.Fatal(err)
	}
	if course.IRI != "http://vle.example.com/xapi/activities/course/10" {
		t.Errorf("course iri = %v", course.IRI)
	}
	if course.Name["fr"] != "Biology 101" {
		t.Errorf("course name = %v, want the course language key", course.Name)
	}

	module, err := r.Context(platform.ContextModule, 20)
	if err != nil {
		t.Fatal(err)
	}
	if module.IRI != "http://vle.example.com/xapi/activities/mod_forum/20" {
		t.Errorf("module iri = %v", module.IRI)
	}

	system, err := r.Context(platform.ContextSystem, 0)
	if err != nil {
		t.Fatal(err)
	}
	if system.IRI != "http://vle.example.com" {
		t.Errorf("system iri = %v", system.IRI)
	}

	if _, err := r.Context(platform.ContextUser, 1); err == nil {
		t.Error("user contexts have no activity and must fail")
	}
}
