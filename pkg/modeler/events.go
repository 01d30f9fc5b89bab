package modeler

func courseViewedKind() *kind {
	return &kind{
		name:          "course_viewed",
		template:      staticTemplate("core/course_viewed"),
		templateNames: []string{"core/course_viewed"},
		accessors:     baseAccessors(),
	}
}

func courseModuleViewedKind() *kind {
	return &kind{
		name:          "course_module_viewed",
		template:      staticTemplate("core/course_module_viewed"),
		templateNames: []string{"core/course_module_viewed"},
		accessors:     baseAccessors(),
	}
}

func completionUpdatedKind() *kind {
	extra := map[string]Accessor{
		"completion_state": func(c *Context) (any, error) {
			state, ok := c.bagString("completionstate")
			if !ok {
				return nil, nil
			}
			return state == "1" || state == "2", nil
		},
	}
	return &kind{
		name: "course_module_completion_updated",
		template: func(c *Context) (string, error) {
			// A completion toggled back to incomplete is platform
			// bookkeeping, not a learning experience.
			if state, ok := c.bagString("completionstate"); ok && state == "0" {
				return "", ErrIgnored
			}
			return "core/course_module_completion_updated", nil
		},
		templateNames: []string{"core/course_module_completion_updated"},
		accessors:     mergeAccessors(baseAccessors(), extra),
	}
}

func userLoggedInKind() *kind {
	return &kind{
		name:          "user_loggedin",
		template:      staticTemplate("core/user_loggedin"),
		templateNames: []string{"core/user_loggedin"},
		accessors:     baseAccessors(),
	}
}

func userLoggedOutKind() *kind {
	return &kind{
		name:          "user_loggedout",
		template:      staticTemplate("core/user_loggedout"),
		templateNames: []string{"core/user_loggedout"},
		accessors:     baseAccessors(),
	}
}
