package modeler

import "strings"

// kind binds one event family to its template selection and accessor set.
// Either template or build is set: template-driven kinds expand a JSON
// template, build kinds construct the statement directly.
type kind struct {
	name      string
	template  func(c *Context) (string, error)
	build     func(c *Context) (map[string]any, error)
	accessors map[string]Accessor

	// templateNames lists every template the kind can select, so the
	// whole bundle is loaded and validated up front.
	templateNames []string
}

// registry is assembled once at package load. Kinds never change at
// runtime; an event either has a kind here or it is not modeled.
var registry = buildRegistry()

func buildRegistry() map[string]*kind {
	kinds := make(map[string]*kind)
	for _, k := range []*kind{
		courseViewedKind(),
		courseModuleViewedKind(),
		completionUpdatedKind(),
		userLoggedInKind(),
		userLoggedOutKind(),
		userGradedKind(),
		statementReceivedKind(),
		scoStageKind(StageLaunched),
		scoStageKind(StageCompleted),
		scoStageKind(StageAssessed),
		scoStageKind(StageInteracted),
	} {
		kinds[k.name] = k
	}
	return kinds
}

// kindFor resolves an event name to its kind. Component-specific module
// view events such as "quiz_course_module_viewed" all collapse onto the
// generic module view kind.
func kindFor(eventName string) (*kind, bool) {
	if k, ok := registry[eventName]; ok {
		return k, true
	}
	if strings.Contains(eventName, "course_module_viewed") {
		return registry["course_module_viewed"], true
	}
	return nil, false
}

// stageKindName maps a SCORM stage to its registry key.
func stageKindName(stage string) string {
	return "sco_" + stage
}

func mergeAccessors(sets ...map[string]Accessor) map[string]Accessor {
	out := make(map[string]Accessor)
	for _, set := range sets {
		for name, fn := range set {
			out[name] = fn
		}
	}
	return out
}

func staticTemplate(name string) func(c *Context) (string, error) {
	return func(c *Context) (string, error) { return name, nil }
}
