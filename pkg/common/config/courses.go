package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Events capture modes for a course.
const (
	EventsModeNo   = "no"
	EventsModeLive = "live"
	EventsModeLogs = "logs"
)

const dateLayout = "2006-01-02"

// CourseConfig describes how one course's activity is tracked. It stands in
// for the per-course block configuration of the host platform admin UI.
type CourseConfig struct {
	CourseID   int64  `yaml:"id"`
	LRS        int    `yaml:"lrs"`
	EventsMode string `yaml:"events_mode"`
	LogsFrom   string `yaml:"logs_from"`
	Scorm      bool   `yaml:"scorm"`
	ScormFrom  string `yaml:"scorm_from"`
}

// LogsFloor returns the replay floor date for log scanning.
func (c CourseConfig) LogsFloor() time.Time {
	return parseFloor(c.LogsFrom)
}

// ScormFloor returns the replay floor date for SCORM scanning.
func (c CourseConfig) ScormFloor() time.Time {
	return parseFloor(c.ScormFrom)
}

// SystemConfig describes tracking of system-level events (no owning course).
type SystemConfig struct {
	LRS        int    `yaml:"lrs"`
	EventsMode string `yaml:"events_mode"`
	LogsFrom   string `yaml:"logs_from"`
}

func (c SystemConfig) LogsFloor() time.Time {
	return parseFloor(c.LogsFrom)
}

// Courses is the parsed per-course source configuration.
type Courses struct {
	System  SystemConfig   `yaml:"system"`
	Courses []CourseConfig `yaml:"courses"`
}

// LoadCourses reads the course configuration file.
func LoadCourses(path string) (*Courses, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read courses file: %w", err)
	}
	return ParseCourses(raw)
}

// ParseCourses parses the YAML course configuration.
func ParseCourses(raw []byte) (*Courses, error) {
	var cs Courses
	if err := yaml.Unmarshal(raw, &cs); err != nil {
		return nil, fmt.Errorf("parse courses file: %w", err)
	}
	for i := range cs.Courses {
		if cs.Courses[i].EventsMode == "" {
			cs.Courses[i].EventsMode = EventsModeNo
		}
	}
	if cs.System.EventsMode == "" {
		cs.System.EventsMode = EventsModeNo
	}
	return &cs, nil
}

// All returns every configured course.
func (cs *Courses) All() []CourseConfig {
	return cs.Courses
}

// Course returns the config of one course, if present.
func (cs *Courses) Course(courseID int64) (CourseConfig, bool) {
	for _, c := range cs.Courses {
		if c.CourseID == courseID {
			return c, true
		}
	}
	return CourseConfig{}, false
}

// ByEventsMode returns the course configs with the given events mode.
func (cs *Courses) ByEventsMode(mode string) []CourseConfig {
	var out []CourseConfig
	for _, c := range cs.Courses {
		if c.EventsMode == mode {
			out = append(out, c)
		}
	}
	return out
}

// ScormEnabled returns the course configs with SCORM tracking on.
func (cs *Courses) ScormEnabled() []CourseConfig {
	var out []CourseConfig
	for _, c := range cs.Courses {
		if c.Scorm {
			out = append(out, c)
		}
	}
	return out
}

func parseFloor(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
