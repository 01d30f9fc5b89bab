package activities

import (
	"fmt"
	"strconv"

	"github.com/openlearn/xapi-agent/pkg/platform"
)

// Props describes one platform entity as an xAPI activity.
type Props struct {
	IRI        string
	Name       map[string]string
	Component  string
	URL        string
	ExternalID string
}

// Resolver turns platform identifiers into activity descriptors. Lookups
// are memoized for the lifetime of the resolver; build one resolver per
// modeling pass so the next batch sees fresh platform state.
type Resolver struct {
	repo *platform.Repository
	base string

	courses map[int64]*Props
	modules map[int64]*Props
	scos    map[int64]*Props
	system  *Props
}

func NewResolver(repo *platform.Repository, base string) *Resolver {
	return &Resolver{
		repo:    repo,
		base:    base,
		courses: make(map[int64]*Props),
		modules: make(map[int64]*Props),
		scos:    make(map[int64]*Props),
	}
}

// IRI derives a deterministic activity IRI.
func (r *Resolver) IRI(component string, id int64) string {
	return r.base + "/xapi/activities/" + component + "/" + strconv.FormatInt(id, 10)
}

func (r *Resolver) Course(id int64) (*Props, error) {
	if p, ok := r.courses[id]; ok {
		return p, nil
	}
	course, err := r.repo.Course(id)
	if err != nil {
		return nil, fmt.Errorf("resolve course %d: %w", id, err)
	}
	p := &Props{
		IRI:        r.IRI("course", id),
		Name:       langString(course.FullName, course.Lang),
		Component:  "course",
		URL:        fmt.Sprintf("%s/course/%d", r.base, id),
		ExternalID: course.ExternalID,
	}
	r.courses[id] = p
	return p, nil
}

func (r *Resolver) Module(id int64) (*Props, error) {
	if p, ok := r.modules[id]; ok {
		return p, nil
	}
	module, err := r.repo.Module(id)
	if err != nil {
		return nil, fmt.Errorf("resolve module %d: %w", id, err)
	}
	course, err := r.repo.Course(module.CourseID)
	if err != nil {
		return nil, fmt.Errorf("resolve module %d course: %w", id, err)
	}
	p := &Props{
		IRI:        r.IRI(module.Component, id),
		Name:       langString(module.Name, course.Lang),
		Component:  module.Component,
		URL:        fmt.Sprintf("%s/module/%d", r.base, id),
		ExternalID: module.ExternalID,
	}
	r.modules[id] = p
	return p, nil
}

// Sco resolves a trackable item of a SCORM package.
func (r *Resolver) Sco(id int64) (*Props, error) {
	if p, ok := r.scos[id]; ok {
		return p, nil
	}
	sco, err := r.repo.Sco(id)
	if err != nil {
		return nil, fmt.Errorf("resolve sco %d: %w", id, err)
	}
	module, err := r.repo.Module(sco.ModuleID)
	if err != nil {
		return nil, fmt.Errorf("resolve sco %d module: %w", id, err)
	}
	course, err := r.repo.Course(module.CourseID)
	if err != nil {
		return nil, fmt.Errorf("resolve sco %d course: %w", id, err)
	}
	p := &Props{
		IRI:       r.IRI("sco", id),
		Name:      langString(sco.Name, course.Lang),
		Component: "sco",
	}
	r.scos[id] = p
	return p, nil
}

// System resolves the platform root.
func (r *Resolver) System() *Props {
	if r.system == nil {
		r.system = &Props{IRI: r.base, Component: "system"}
	}
	return r.system
}

// Context resolves a log entry context by level and instance id.
func (r *Resolver) Context(level int, instanceID int64) (*Props, error) {
	switch level {
	case platform.ContextModule:
		return r.Module(instanceID)
	case platform.ContextCourse:
		return r.Course(instanceID)
	case platform.ContextSystem:
		return r.System(), nil
	}
	return nil, fmt.Errorf("resolve context level %d: %w", level, platform.ErrNotFound)
}

func langString(text, lang string) map[string]string {
	if lang == "" {
		lang = "en"
	}
	return map[string]string{lang: text}
}
