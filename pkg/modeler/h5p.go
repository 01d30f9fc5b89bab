package modeler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// statementReceivedKind handles interactive content that emits ready-made
// xAPI statements. The inbound statement is carried in the event bag and
// passed through mostly untouched: the agent only pins a deterministic id,
// fills a missing timestamp, and rewrites the actor so identification stays
// consistent with every other statement it emits.
func statementReceivedKind() *kind {
	return &kind{
		name: "statement_received",
		build: func(c *Context) (map[string]any, error) {
			raw, ok := c.bagString("statement")
			if !ok || raw == "" {
				return nil, fmt.Errorf("event %d carries no statement payload", c.Event.ID)
			}
			var st map[string]any
			if err := json.Unmarshal([]byte(raw), &st); err != nil {
				return nil, fmt.Errorf("event %d statement payload: %w", c.Event.ID, err)
			}
			if _, ok := st["verb"]; !ok {
				return nil, fmt.Errorf("event %d statement payload has no verb", c.Event.ID)
			}
			if _, ok := st["object"]; !ok {
				return nil, fmt.Errorf("event %d statement payload has no object", c.Event.ID)
			}

			st["id"] = uuid.NewSHA1(statementNS, []byte(c.identityKey)).String()
			if _, ok := st["timestamp"]; !ok {
				st["timestamp"] = c.Event.CreatedAt.UTC().Format(time.RFC3339)
			}
			actor, err := c.Actors.User(c.Event.UserID)
			if err != nil {
				return nil, err
			}
			st["actor"] = actor
			return st, nil
		},
		accessors: baseAccessors(),
	}
}
