package modeler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/openlearn/xapi-agent/pkg/platform"
)

// gradeInfo is the decoded grading payload of one user_graded event,
// joined with the graded module's grade settings.
type gradeInfo struct {
	final      float64
	voided     bool
	overridden bool
	min        float64
	max        float64
	pass       float64
}

// userGradedKind models grade changes. The actor is the graded user, not
// the grader; the grader appears as instructor when the two differ. A grade
// wiped by the instructor voids the previous score statement.
func userGradedKind() *kind {
	return &kind{
		name: "user_graded",
		template: func(c *Context) (string, error) {
			info, err := c.gradeInfo()
			if err != nil {
				return "", err
			}
			// Grade statement ids derive from (learner, module), not the
			// event id, so a wiped grade can void the statement it
			// replaces without looking the original event up again.
			if info.voided {
				c.identityKey = "void:" + c.gradeIdentity()
				return "core/course_module_voided_score", nil
			}
			c.identityKey = c.gradeIdentity()
			return "core/course_module_scored", nil
		},
		templateNames: []string{
			"core/course_module_scored",
			"core/course_module_voided_score",
		},
		accessors: mergeAccessors(baseAccessors(), gradedAccessors()),
	}
}

func gradedAccessors() map[string]Accessor {
	return map[string]Accessor{
		// The learner is the statement actor for grade events.
		"actor": func(c *Context) (any, error) {
			if c.Event.RelatedUserID == 0 {
				return nil, fmt.Errorf("grade event %d has no graded user", c.Event.ID)
			}
			return c.Actors.User(c.Event.RelatedUserID)
		},
		"instructor": func(c *Context) (any, error) {
			if c.Event.UserID <= 0 || c.Event.UserID == c.Event.RelatedUserID {
				return nil, nil
			}
			return c.Actors.User(c.Event.UserID)
		},
		"grade_verb": func(c *Context) (any, error) {
			info, err := c.gradeInfo()
			if err != nil {
				return nil, err
			}
			switch {
			case info.pass <= 0:
				return "http://adlnet.gov/expapi/verbs/scored", nil
			case info.final >= info.pass:
				return "http://adlnet.gov/expapi/verbs/passed", nil
			default:
				return "http://adlnet.gov/expapi/verbs/failed", nil
			}
		},
		"grade_verb_display": func(c *Context) (any, error) {
			info, err := c.gradeInfo()
			if err != nil {
				return nil, err
			}
			switch {
			case info.pass <= 0:
				return map[string]string{"en": "scored"}, nil
			case info.final >= info.pass:
				return map[string]string{"en": "passed"}, nil
			default:
				return map[string]string{"en": "failed"}, nil
			}
		},
		"score_raw": func(c *Context) (any, error) {
			info, err := c.gradeInfo()
			if err != nil {
				return nil, err
			}
			return round2(info.final), nil
		},
		"score_min": func(c *Context) (any, error) {
			info, err := c.gradeInfo()
			if err != nil {
				return nil, err
			}
			return round2(info.min), nil
		},
		"score_max": func(c *Context) (any, error) {
			info, err := c.gradeInfo()
			if err != nil {
				return nil, err
			}
			return round2(info.max), nil
		},
		"score_scaled": func(c *Context) (any, error) {
			info, err := c.gradeInfo()
			if err != nil {
				return nil, err
			}
			if info.max <= info.min {
				return nil, nil
			}
			return round2((info.final - info.min) / (info.max - info.min)), nil
		},
		"voided_statement_ref": func(c *Context) (any, error) {
			return map[string]any{
				"objectType": "StatementRef",
				"id":         uuid.NewSHA1(statementNS, []byte(c.gradeIdentity())).String(),
			}, nil
		},
		"grade_success": func(c *Context) (any, error) {
			info, err := c.gradeInfo()
			if err != nil {
				return nil, err
			}
			if info.pass <= 0 {
				return nil, nil
			}
			return info.final >= info.pass, nil
		},
	}
}

func (c *Context) gradeIdentity() string {
	return fmt.Sprintf("grade:%d:module:%d", c.Event.RelatedUserID, c.Event.ContextInstanceID)
}

// gradeInfo decodes and caches the grading payload. It vetoes events that
// cannot represent a learner grade: negative user ids (system graders on
// aggregated items), non-course contexts, and grade items that do not
// belong to a gradable activity module.
func (c *Context) gradeInfo() (*gradeInfo, error) {
	if c.grade != nil {
		return c.grade, nil
	}
	if c.Event.UserID < 0 {
		return nil, ErrIgnored
	}
	if c.Event.ContextLevel != platform.ContextModule {
		return nil, ErrIgnored
	}

	module, err := c.Repo.Module(c.Event.ContextInstanceID)
	if err != nil {
		return nil, fmt.Errorf("grade event %d module: %w", c.Event.ID, err)
	}
	if !strings.HasPrefix(module.Component, "mod_") {
		return nil, ErrIgnored
	}
	if module.GradeType != platform.GradeTypeValue && module.GradeType != platform.GradeTypeScale {
		return nil, ErrIgnored
	}

	info := &gradeInfo{
		min:  module.GradeMin,
		max:  module.GradeMax,
		pass: module.GradePass,
	}
	if v, ok := c.bagString("overridden"); ok && v != "0" && v != "" {
		info.overridden = true
	}
	raw, ok := c.bagString("finalgrade")
	if !ok || raw == "" || raw == "null" {
		info.voided = true
	} else {
		final, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("grade event %d: bad finalgrade %q", c.Event.ID, raw)
		}
		info.final = final
	}

	c.grade = info
	return info, nil
}
