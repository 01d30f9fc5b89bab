package selector

import "testing"

func TestSelected(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"course_viewed", true},
		{"user_graded", true},
		{"user_loggedin", true},
		{"statement_received", true},
		{"course_module_viewed", true},
		{"quiz_course_module_viewed", true},
		{"forum_course_module_viewed", true},
		{"cache_flushed", false},
		{"user_password_updated", false},
		{"course_module_deleted", false},
	}
	for _, c := range cases {
		if got := Selected(c.name); got != c.want {
			t.Errorf("Selected(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}
