package modeler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Element keys written by SCORM 2004 packages and their 1.2 equivalents.
// Accessors always probe the 2004 key first.
const (
	ElementStartTime = "x.start.time"

	elementCompletion       = "cmi.completion_status"
	elementLegacyLesson     = "cmi.core.lesson_status"
	elementSuccess          = "cmi.success_status"
	elementScoreRaw         = "cmi.score.raw"
	elementLegacyScoreRaw   = "cmi.core.score.raw"
	elementScoreMin         = "cmi.score.min"
	elementLegacyScoreMin   = "cmi.core.score.min"
	elementScoreMax         = "cmi.score.max"
	elementLegacyScoreMax   = "cmi.core.score.max"
	elementScoreScaled      = "cmi.score.scaled"
	elementTotalTime        = "cmi.total_time"
	elementLegacyTotalTime  = "cmi.core.total_time"
	interactionPrefix       = "cmi.interactions."
	legacyInteractionPrefix = "interactions_"
)

// StageElements lists the element keys a stage decision depends on, for
// scanners that restrict their queries to relevant rows.
func StageElements() []string {
	return []string{
		ElementStartTime,
		elementCompletion,
		elementLegacyLesson,
		elementSuccess,
		elementScoreRaw,
		elementLegacyScoreRaw,
	}
}

func scoStageKind(stage string) *kind {
	name := stageKindName(stage)
	tpl := "scorm/" + name
	accessors := mergeAccessors(baseAccessors(), scormAccessors())
	if stage == StageInteracted {
		accessors = mergeAccessors(accessors, interactionAccessors())
	}
	return &kind{
		name:          name,
		template:      staticTemplate(tpl),
		templateNames: []string{tpl},
		accessors:     accessors,
	}
}

func scormAccessors() map[string]Accessor {
	return map[string]Accessor{
		"sco_iri": func(c *Context) (any, error) {
			sco, err := c.Resolver.Sco(c.Attempt.ScoID)
			if err != nil {
				return nil, err
			}
			return sco.IRI, nil
		},
		"sco_name": func(c *Context) (any, error) {
			sco, err := c.Resolver.Sco(c.Attempt.ScoID)
			if err != nil {
				return nil, err
			}
			return sco.Name, nil
		},
		"module_iri": func(c *Context) (any, error) {
			module, err := c.module()
			if err != nil {
				return nil, err
			}
			return module.IRI, nil
		},
		"module_name": func(c *Context) (any, error) {
			module, err := c.module()
			if err != nil {
				return nil, err
			}
			return module.Name, nil
		},
		"attempt_number": func(c *Context) (any, error) {
			attempt, err := c.Repo.Attempt(c.Attempt.AttemptID)
			if err != nil {
				return nil, err
			}
			return attempt.Number, nil
		},
		"scorm_completion": func(c *Context) (any, error) {
			status, ok := c.scormValue(elementCompletion, elementLegacyLesson)
			if !ok {
				return nil, nil
			}
			switch status {
			case "completed", "passed", "failed":
				return true, nil
			case "incomplete":
				return false, nil
			}
			return nil, nil
		},
		"scorm_success": func(c *Context) (any, error) {
			return c.scormSuccess(), nil
		},
		"scorm_verb": func(c *Context) (any, error) {
			switch c.scormSuccess() {
			case true:
				return "http://adlnet.gov/expapi/verbs/passed", nil
			case false:
				return "http://adlnet.gov/expapi/verbs/failed", nil
			}
			return "http://adlnet.gov/expapi/verbs/scored", nil
		},
		"scorm_verb_display": func(c *Context) (any, error) {
			switch c.scormSuccess() {
			case true:
				return map[string]string{"en": "passed"}, nil
			case false:
				return map[string]string{"en": "failed"}, nil
			}
			return map[string]string{"en": "scored"}, nil
		},
		"scorm_score_raw": func(c *Context) (any, error) {
			return c.scormScoreInt(elementScoreRaw, elementLegacyScoreRaw), nil
		},
		"scorm_score_min": func(c *Context) (any, error) {
			return c.scormScoreInt(elementScoreMin, elementLegacyScoreMin), nil
		},
		"scorm_score_max": func(c *Context) (any, error) {
			return c.scormScoreInt(elementScoreMax, elementLegacyScoreMax), nil
		},
		"scorm_score_scaled": func(c *Context) (any, error) {
			if raw, ok := c.scormValue(elementScoreScaled); ok {
				if scaled, err := strconv.ParseFloat(raw, 64); err == nil {
					return round2(scaled), nil
				}
			}
			raw := c.scormScoreInt(elementScoreRaw, elementLegacyScoreRaw)
			min := c.scormScoreInt(elementScoreMin, elementLegacyScoreMin)
			max := c.scormScoreInt(elementScoreMax, elementLegacyScoreMax)
			r, okR := raw.(int)
			mn, okMn := min.(int)
			mx, okMx := max.(int)
			if !okR || !okMn || !okMx || mx <= mn {
				return nil, nil
			}
			return round2(float64(r-mn) / float64(mx-mn)), nil
		},
		"scorm_duration": func(c *Context) (any, error) {
			raw, ok := c.scormValue(elementTotalTime, elementLegacyTotalTime)
			if !ok || raw == "" {
				return nil, nil
			}
			if strings.HasPrefix(raw, "PT") || strings.HasPrefix(raw, "P") {
				return raw, nil
			}
			return ISODurationFromLegacy(raw), nil
		},
	}
}

func interactionAccessors() map[string]Accessor {
	return map[string]Accessor{
		"interaction_iri": func(c *Context) (any, error) {
			sco, err := c.Resolver.Sco(c.Attempt.ScoID)
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("%s/interactions/%d", sco.IRI, c.Interaction.Num), nil
		},
		"interaction_type": func(c *Context) (any, error) {
			if c.Interaction.Type == "" {
				return nil, nil
			}
			return c.Interaction.Type, nil
		},
		"interaction_description": func(c *Context) (any, error) {
			if c.Interaction.Description == "" {
				return nil, nil
			}
			return map[string]string{"en": c.Interaction.Description}, nil
		},
		"interaction_response": func(c *Context) (any, error) {
			if c.Interaction.Response == "" {
				return nil, nil
			}
			return c.Interaction.Response, nil
		},
		"interaction_success": func(c *Context) (any, error) {
			switch c.Interaction.Result {
			case "correct":
				return true, nil
			case "wrong", "incorrect", "neutral":
				return false, nil
			}
			return nil, nil
		},
		"interaction_duration": func(c *Context) (any, error) {
			if c.Interaction.Latency == "" {
				return nil, nil
			}
			return ISODurationFromLegacy(c.Interaction.Latency), nil
		},
	}
}

// scormValue probes the attempt values for the first present key.
func (c *Context) scormValue(keys ...string) (string, bool) {
	for _, key := range keys {
		if v, ok := c.Attempt.Values[key]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// scormSuccess derives the pass/fail outcome, nil when undetermined.
func (c *Context) scormSuccess() any {
	if status, ok := c.scormValue(elementSuccess); ok {
		switch status {
		case "passed":
			return true
		case "failed":
			return false
		}
	}
	if status, ok := c.scormValue(elementLegacyLesson); ok {
		switch status {
		case "passed":
			return true
		case "failed":
			return false
		}
	}
	return nil
}

func (c *Context) scormScoreInt(keys ...string) any {
	raw, ok := c.scormValue(keys...)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return int(f)
}

// EligibleStages reports, in machine order, the stages a value set can
// currently support. Launch requires the recorded start time; completion
// any terminal lesson status; assessment a raw score; interaction at least
// one interaction record.
func EligibleStages(values map[string]string) []string {
	var out []string
	if v := firstValue(values, ElementStartTime); v != "" {
		out = append(out, StageLaunched)
	}
	switch firstValue(values, elementCompletion, elementLegacyLesson) {
	case "completed", "passed", "failed":
		out = append(out, StageCompleted)
	}
	if firstValue(values, elementScoreRaw, elementLegacyScoreRaw) != "" {
		out = append(out, StageAssessed)
	}
	if len(GroupInteractions(values)) > 0 {
		out = append(out, StageInteracted)
	}
	return out
}

func firstValue(values map[string]string, keys ...string) string {
	for _, key := range keys {
		if v, ok := values[key]; ok && v != "" {
			return v
		}
	}
	return ""
}

// GroupInteractions folds the raw interaction element values of an attempt
// into per-ordinal records. Both the dotted 2004 encoding
// (cmi.interactions.0.type) and the flat legacy encoding (interactions_0)
// are understood; unparseable keys are skipped.
func GroupInteractions(values map[string]string) []Interaction {
	byNum := make(map[int]*Interaction)
	get := func(num int) *Interaction {
		if it, ok := byNum[num]; ok {
			return it
		}
		it := &Interaction{Num: num}
		byNum[num] = it
		return it
	}

	for key, value := range values {
		if rest, ok := strings.CutPrefix(key, interactionPrefix); ok {
			parts := strings.SplitN(rest, ".", 2)
			if len(parts) != 2 {
				continue
			}
			num, err := strconv.Atoi(parts[0])
			if err != nil {
				continue
			}
			setInteractionProp(get(num), parts[1], value)
			continue
		}
		if rest, ok := strings.CutPrefix(key, legacyInteractionPrefix); ok {
			num, err := strconv.Atoi(strings.SplitN(rest, "_", 2)[0])
			if err != nil {
				continue
			}
			it := get(num)
			if idx := strings.Index(rest, "_"); idx >= 0 {
				setInteractionProp(it, rest[idx+1:], value)
			}
		}
	}

	nums := make([]int, 0, len(byNum))
	for num := range byNum {
		nums = append(nums, num)
	}
	sort.Ints(nums)
	out := make([]Interaction, 0, len(nums))
	for _, num := range nums {
		out = append(out, *byNum[num])
	}
	return out
}

func setInteractionProp(it *Interaction, prop, value string) {
	switch prop {
	case "type":
		it.Type = value
	case "description", "id":
		if it.Description == "" {
			it.Description = value
		}
	case "learner_response", "student_response", "response":
		it.Response = value
	case "result":
		it.Result = value
	case "latency":
		it.Latency = value
	case "timestamp":
		it.Timestamp = value
	case "time":
		it.Time = value
	}
}
