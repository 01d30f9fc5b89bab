package modeler

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/openlearn/xapi-agent/pkg/activities"
	"github.com/openlearn/xapi-agent/pkg/platform"
)

// statementNS seeds the deterministic statement ids. Modeling the same
// record twice yields the same id, so an LRS that saw the statement once
// treats a redelivery as a no-op.
var statementNS = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/openlearn/xapi-agent"))

// Context carries one source record through template expansion. It is built
// per record and composes the shared resolvers rather than inheriting from
// them; accessors reach platform state only through these fields.
type Context struct {
	Resolver *activities.Resolver
	Actors   *activities.Actors
	Repo     *platform.Repository

	Event       *Event
	Attempt     *Attempt
	Interaction *Interaction

	bag   map[string]any
	grade *gradeInfo

	// identityKey feeds the deterministic statement id.
	identityKey string
}

// bagString reads a string-ish value from the event attribute bag.
func (c *Context) bagString(key string) (string, bool) {
	v, ok := c.bag[key]
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return fmt.Sprintf("%g", s), true
	case int64:
		return fmt.Sprintf("%d", s), true
	case bool:
		if s {
			return "1", true
		}
		return "0", true
	}
	return "", false
}

func (c *Context) module() (*activities.Props, error) {
	if c.Attempt != nil {
		return c.Resolver.Module(c.Attempt.ModuleID)
	}
	if c.Event.ContextLevel == platform.ContextModule {
		return c.Resolver.Module(c.Event.ContextInstanceID)
	}
	return nil, fmt.Errorf("context level %d carries no module", c.Event.ContextLevel)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// baseAccessors are shared by every template-driven kind.
func baseAccessors() map[string]Accessor {
	return map[string]Accessor{
		"statement_id": func(c *Context) (any, error) {
			return uuid.NewSHA1(statementNS, []byte(c.identityKey)).String(), nil
		},
		"actor": func(c *Context) (any, error) {
			if c.Attempt != nil {
				return c.Actors.User(c.Attempt.UserID)
			}
			return c.Actors.User(c.Event.UserID)
		},
		"related_actor": func(c *Context) (any, error) {
			if c.Event.RelatedUserID == 0 {
				return nil, fmt.Errorf("event %d has no related user", c.Event.ID)
			}
			return c.Actors.User(c.Event.RelatedUserID)
		},
		"timestamp": func(c *Context) (any, error) {
			if c.Attempt != nil {
				return c.Attempt.Timestamp.UTC().Format(time.RFC3339), nil
			}
			return c.Event.CreatedAt.UTC().Format(time.RFC3339), nil
		},
		"system_iri": func(c *Context) (any, error) {
			return c.Resolver.System().IRI, nil
		},
		"course_iri": func(c *Context) (any, error) {
			course, err := c.courseProps()
			if err != nil {
				return nil, err
			}
			return course.IRI, nil
		},
		"course_name": func(c *Context) (any, error) {
			course, err := c.courseProps()
			if err != nil {
				return nil, err
			}
			return course.Name, nil
		},
		"course_idnumber": func(c *Context) (any, error) {
			course, err := c.courseProps()
			if err != nil {
				return nil, err
			}
			if course.ExternalID == "" {
				return nil, nil
			}
			return course.ExternalID, nil
		},
		"context_iri": func(c *Context) (any, error) {
			ctx, err := c.contextProps()
			if err != nil {
				return nil, err
			}
			return ctx.IRI, nil
		},
		"context_name": func(c *Context) (any, error) {
			ctx, err := c.contextProps()
			if err != nil {
				return nil, err
			}
			if ctx.Name == nil {
				return nil, nil
			}
			return ctx.Name, nil
		},
		"context_type": func(c *Context) (any, error) {
			ctx, err := c.contextProps()
			if err != nil {
				return nil, err
			}
			return activityType(ctx.Component), nil
		},
	}
}

func (c *Context) courseProps() (*activities.Props, error) {
	if c.Attempt != nil {
		return c.Resolver.Course(c.Attempt.CourseID)
	}
	return c.Resolver.Course(c.Event.CourseID)
}

func (c *Context) contextProps() (*activities.Props, error) {
	if c.Attempt != nil {
		return c.Resolver.Module(c.Attempt.ModuleID)
	}
	return c.Resolver.Context(c.Event.ContextLevel, c.Event.ContextInstanceID)
}

// activityType maps a platform component to its xAPI activity type IRI.
func activityType(component string) string {
	switch component {
	case "course":
		return "http://vocab.xapi.fr/activities/course"
	case "system":
		return "http://vocab.xapi.fr/activities/system"
	case "sco":
		return "http://vocab.xapi.fr/activities/sco"
	case "mod_scorm":
		return "http://vocab.xapi.fr/activities/scorm-package"
	case "mod_quiz":
		return "http://vocab.xapi.fr/activities/quiz"
	case "mod_forum":
		return "http://vocab.xapi.fr/activities/forum"
	case "mod_h5pactivity":
		return "http://vocab.xapi.fr/activities/interactive-content"
	}
	return "http://vocab.xapi.fr/activities/learning-unit"
}
