package activities

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/openlearn/xapi-agent/pkg/common/config"
	"github.com/openlearn/xapi-agent/pkg/platform"
	"gorm.io/gorm"
)

// ActorEntry pins a stable UUID to a platform user for the "uuid"
// identification mode.
type ActorEntry struct {
	ID     int64  `gorm:"primaryKey;column:id"`
	UserID int64  `gorm:"column:user_id;uniqueIndex:idx_actor_user_kind"`
	Kind   string `gorm:"column:kind;uniqueIndex:idx_actor_user_kind"`
	UUID   string `gorm:"column:uuid"`
}

func (ActorEntry) TableName() string { return "xapi_actors" }

// Actors resolves platform users into xAPI agents, according to the
// configured identification mode.
type Actors struct {
	repo *platform.Repository
	db   *gorm.DB
	cfg  *config.Config
	memo map[int64]map[string]any
}

func NewActors(repo *platform.Repository, db *gorm.DB, cfg *config.Config) *Actors {
	return &Actors{
		repo: repo,
		db:   db,
		cfg:  cfg,
		memo: make(map[int64]map[string]any),
	}
}

func (a *Actors) AutoMigrate() error {
	return a.db.AutoMigrate(&ActorEntry{})
}

// User builds the xAPI agent for a platform user.
func (a *Actors) User(id int64) (map[string]any, error) {
	if agent, ok := a.memo[id]; ok {
		return agent, nil
	}
	user, err := a.repo.User(id)
	if err != nil {
		return nil, fmt.Errorf("resolve actor %d: %w", id, err)
	}

	var agent map[string]any

	// A custom profile field takes precedence over the configured mode,
	// but only when the user actually carries a value for it.
	if field := a.cfg.ActorsIDCustomField; field != "" {
		if v, ok := user.Profile[field].(string); ok && v != "" {
			agent = a.account(v, field)
		}
	}

	if agent == nil {
		switch a.cfg.ActorsIDMode {
		case config.ActorsIDUsername:
			agent = a.account(user.Username, config.ActorsIDUsername)
		case config.ActorsIDDBID:
			agent = a.account(strconv.FormatInt(user.ID, 10), config.ActorsIDDBID)
		case config.ActorsIDUUID:
			entry, err := a.entry(id, "user")
			if err != nil {
				return nil, err
			}
			agent = a.account(entry.UUID, config.ActorsIDUUID)
		case config.ActorsIDEmail:
			agent = map[string]any{
				"objectType": "Agent",
				"mbox":       "mailto:" + user.Email,
			}
		default:
			return nil, fmt.Errorf("resolve actor %d: unknown identification mode %q", id, a.cfg.ActorsIDMode)
		}
	}

	if a.cfg.ActorsIncludeName {
		agent["name"] = user.FirstName + " " + user.LastName
	}

	a.memo[id] = agent
	return agent, nil
}

func (a *Actors) account(name, mode string) map[string]any {
	return map[string]any{
		"objectType": "Agent",
		"account": map[string]any{
			"name":     name,
			"homePage": a.cfg.ActorsIDHomepage(mode),
		},
	}
}

func (a *Actors) entry(userID int64, kind string) (*ActorEntry, error) {
	var entry ActorEntry
	err := a.db.
		Where(ActorEntry{UserID: userID, Kind: kind}).
		Attrs(ActorEntry{UUID: uuid.New().String()}).
		FirstOrCreate(&entry).Error
	if err != nil {
		return nil, fmt.Errorf("actor uuid entry for user %d: %w", userID, err)
	}
	return &entry, nil
}
