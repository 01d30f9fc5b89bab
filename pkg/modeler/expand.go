package modeler

import (
	"fmt"
	"strings"
)

// Accessor computes the value behind one template placeholder. A nil value
// with a nil error removes the key from the statement. Returning ErrIgnored
// (possibly wrapped) vetoes the whole record.
type Accessor func(c *Context) (any, error)

const placeholderSentinel = "%"

// accessorName maps a placeholder token to its accessor registry key.
// Colons become underscores and the structural "modeler" prefix is dropped,
// so "%modeler:course_iri" and "%course_iri" address the same accessor.
func accessorName(token string) string {
	name := strings.ReplaceAll(strings.TrimPrefix(token, placeholderSentinel), ":", "_")
	return strings.TrimPrefix(name, "modeler_")
}

// validateTemplate walks a parsed template and confirms every placeholder
// resolves to a registered accessor. Run once per (template, kind) pair so
// a typo fails the first record loudly instead of each record quietly.
func validateTemplate(tpl map[string]any, accessors map[string]Accessor) error {
	return walkPlaceholders(tpl, func(token string) error {
		name := accessorName(token)
		if _, ok := accessors[name]; !ok {
			return fmt.Errorf("unknown placeholder %q (accessor %q)", token, name)
		}
		return nil
	})
}

func walkPlaceholders(node any, fn func(token string) error) error {
	switch v := node.(type) {
	case map[string]any:
		for _, child := range v {
			if err := walkPlaceholders(child, fn); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range v {
			if err := walkPlaceholders(child, fn); err != nil {
				return err
			}
		}
	case string:
		if strings.HasPrefix(v, placeholderSentinel) {
			return fn(v)
		}
	}
	return nil
}

// expandTemplate produces a statement from a parsed template, resolving
// placeholders through the kind's accessors. The input tree is never
// mutated. Keys whose accessor returns nil are dropped, and "extensions"
// objects that end up empty are dropped with them.
func expandTemplate(tpl map[string]any, accessors map[string]Accessor, c *Context) (map[string]any, error) {
	out, err := expandMap(tpl, accessors, c)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func expandMap(tpl map[string]any, accessors map[string]Accessor, c *Context) (map[string]any, error) {
	out := make(map[string]any, len(tpl))
	for key, node := range tpl {
		val, keep, err := expandNode(node, accessors, c)
		if err != nil {
			return nil, err
		}
		if !keep {
			continue
		}
		if key == "extensions" {
			if ext, ok := val.(map[string]any); ok && len(ext) == 0 {
				continue
			}
		}
		out[key] = val
	}
	return out, nil
}

func expandNode(node any, accessors map[string]Accessor, c *Context) (any, bool, error) {
	switch v := node.(type) {
	case map[string]any:
		child, err := expandMap(v, accessors, c)
		if err != nil {
			return nil, false, err
		}
		return child, true, nil
	case []any:
		items := make([]any, 0, len(v))
		for _, elem := range v {
			item, keep, err := expandNode(elem, accessors, c)
			if err != nil {
				return nil, false, err
			}
			if keep {
				items = append(items, item)
			}
		}
		return items, true, nil
	case string:
		if !strings.HasPrefix(v, placeholderSentinel) {
			return v, true, nil
		}
		fn, ok := accessors[accessorName(v)]
		if !ok {
			return nil, false, fmt.Errorf("unknown placeholder %q", v)
		}
		val, err := fn(c)
		if err != nil {
			return nil, false, err
		}
		if val == nil {
			return nil, false, nil
		}
		return val, true, nil
	}
	return node, true, nil
}
