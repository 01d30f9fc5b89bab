package selector

import "strings"

// supported lists the event families the agent models. Everything else is
// discarded before modeling, so an unsupported event is never a fault.
var supported = map[string]struct{}{
	"course_viewed":                    {},
	"course_module_viewed":             {},
	"course_module_completion_updated": {},
	"user_graded":                      {},
	"user_loggedin":                    {},
	"user_loggedout":                   {},
	"statement_received":               {},
}

// Selected reports whether an event name is worth modeling. Module view
// events carry component-specific names ("quiz_course_module_viewed"), so
// those match on the family substring.
func Selected(eventName string) bool {
	if _, ok := supported[eventName]; ok {
		return true
	}
	return strings.Contains(eventName, "course_module_viewed")
}

// Supported returns the plain event names, for diagnostics.
func Supported() []string {
	out := make([]string, 0, len(supported))
	for name := range supported {
		out = append(out, name)
	}
	return out
}
