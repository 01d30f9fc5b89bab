package modeler

import (
	"errors"
	"fmt"

	"github.com/openlearn/xapi-agent/pkg/activities"
	"github.com/openlearn/xapi-agent/pkg/platform"
)

// Modeler turns platform records into xAPI statements. It is cheap to
// build; create one per scan or flush pass so entity memoization never
// outlives the pass.
type Modeler struct {
	store    *TemplateStore
	repo     *platform.Repository
	resolver *activities.Resolver
	actors   *activities.Actors
}

func New(store *TemplateStore, repo *platform.Repository, resolver *activities.Resolver, actors *activities.Actors) *Modeler {
	return &Modeler{
		store:    store,
		repo:     repo,
		resolver: resolver,
		actors:   actors,
	}
}

// Preflight loads and validates every template of every registered kind.
// Call it once at service start: a missing template or a placeholder with
// no accessor fails here, not on the first matching record hours later.
func Preflight(store *TemplateStore) error {
	for name, k := range registry {
		for _, tplName := range k.templateNames {
			tpl, err := store.Load(tplName)
			if err != nil {
				return fmt.Errorf("kind %s: %w", name, err)
			}
			if err := validateTemplate(tpl, k.accessors); err != nil {
				return fmt.Errorf("kind %s: template %s: %w", name, tplName, err)
			}
		}
	}
	return nil
}

// ModelEvent models one platform event.
func (m *Modeler) ModelEvent(ev *Event) Outcome {
	k, ok := kindFor(ev.Name)
	if !ok {
		return Outcome{Error: ErrorNoModeler, Source: ev, Cause: fmt.Errorf("no modeler for event %q", ev.Name)}
	}
	c := m.context()
	c.Event = ev
	c.bag = normalizeBag(ev.Other)
	c.identityKey = fmt.Sprintf("event:%d", ev.ID)
	return m.run(k, c, ev, nil)
}

// ModelAttempt models one SCORM attempt stage.
func (m *Modeler) ModelAttempt(at *Attempt, stage string) Outcome {
	k, ok := registry[stageKindName(stage)]
	if !ok {
		return Outcome{Error: ErrorNoModeler, Source: at, Cause: fmt.Errorf("no modeler for stage %q", stage)}
	}
	c := m.context()
	c.Attempt = at
	c.identityKey = fmt.Sprintf("attempt:%d:sco:%d:%s", at.AttemptID, at.ScoID, stage)
	return m.run(k, c, at, nil)
}

// ModelInteraction models one interaction of a SCORM attempt.
func (m *Modeler) ModelInteraction(at *Attempt, it *Interaction) Outcome {
	k := registry[stageKindName(StageInteracted)]
	c := m.context()
	c.Attempt = at
	c.Interaction = it
	c.identityKey = fmt.Sprintf("attempt:%d:sco:%d:interaction:%d", at.AttemptID, at.ScoID, it.Num)
	return m.run(k, c, at, it)
}

func (m *Modeler) context() *Context {
	return &Context{
		Resolver: m.resolver,
		Actors:   m.actors,
		Repo:     m.repo,
	}
}

func (m *Modeler) run(k *kind, c *Context, source, aux any) Outcome {
	out := Outcome{Source: source, Aux: aux}

	if k.build != nil {
		st, err := k.build(c)
		if err != nil {
			return m.failure(out, "", err)
		}
		out.Statement = st
		return out
	}

	tplName, err := k.template(c)
	if err != nil {
		return m.failure(out, tplName, err)
	}
	out.Template = tplName

	tpl, err := m.store.Load(tplName)
	if err != nil {
		return m.failure(out, tplName, err)
	}
	if err := validateTemplate(tpl, k.accessors); err != nil {
		out.Error = ErrorPlaceholder
		out.Cause = err
		return out
	}

	st, err := expandTemplate(tpl, k.accessors, c)
	if err != nil {
		return m.failure(out, tplName, err)
	}
	out.Statement = st
	return out
}

func (m *Modeler) failure(out Outcome, tplName string, err error) Outcome {
	out.Template = tplName
	out.Cause = err
	switch {
	case errors.Is(err, ErrIgnored):
		out.Error = ErrorIgnored
		out.Cause = nil
	case errors.Is(err, ErrTemplateNotFound):
		out.Error = ErrorNoTemplate
	case errors.Is(err, ErrTemplateMalformed):
		out.Error = ErrorBadTemplate
	default:
		out.Error = ErrorPlaceholder
	}
	return out
}
