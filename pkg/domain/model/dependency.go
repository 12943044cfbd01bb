package model

import (
	"slices"
	"strings"
	"time"

	"github.com/secmon-lab/utmcraft/pkg/domain/types"
)

// Checkbox parents expose only these keys in dependency values
const (
	CheckboxOn  = "on"
	CheckboxOff = "off"
)

// SelectDependency restricts the visible choices of a child Select field by
// the value of a parent leaf field. Values maps a parent value to the child
// choice labels shown for it.
type SelectDependency struct {
	ID        types.DependencyID  `json:"id"`
	Title     string              `json:"title"`
	FullTitle types.FullTitle     `json:"full_title"`
	Owner     types.UserID        `json:"owner"`
	Comment   string              `json:"comment,omitempty"`
	Parent    types.FullTitle     `json:"parent"`
	Child     types.FullTitle     `json:"child"`
	Values    map[string][]string `json:"values"`
	Version   int64               `json:"version"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Normalize trims titles and keys and derives FullTitle. Label lists of keys
// colliding after trimming are merged.
func (d *SelectDependency) Normalize() {
	d.Title = types.NormalizeTitle(d.Title)
	if d.Title != "" && d.Owner != "" {
		d.FullTitle = types.NewFullTitle(d.Title, d.Owner)
	}
	if ft, ok := types.ParseReference(string(d.Parent)); ok {
		d.Parent = ft
	}
	if ft, ok := types.ParseReference(string(d.Child)); ok {
		d.Child = ft
	}
	values := make(map[string][]string, len(d.Values))
	for key, labels := range d.Values {
		key = strings.TrimSpace(key)
		values[key] = append(values[key], labels...)
	}
	d.Values = values
}

// Validate checks the dependency against its resolved parent and child fields
func (d *SelectDependency) Validate(parent, child *Field) ValidationErrors {
	var errs ValidationErrors

	if err := types.ValidateTitle(d.Title); err != nil {
		errs.Add("title", ErrInvalidTitle, err.Error())
	}
	if d.Owner == "" {
		errs.Add("owner", ErrValidation, "owner is required")
	}

	switch {
	case parent == nil:
		errs.Add("parent", ErrReferenceNotFound, "parent field not found: "+d.Parent.Ref())
	case !parent.IsLeaf():
		errs.Add("parent", ErrInvalidDependency, "parent must be a form field: "+d.Parent.Ref())
	}
	switch {
	case child == nil:
		errs.Add("child", ErrReferenceNotFound, "child field not found: "+d.Child.Ref())
	case child.Kind != types.FieldKindSelect:
		errs.Add("child", ErrInvalidDependency, "child must be a select field: "+d.Child.Ref())
	}
	if parent != nil && child != nil && parent.ID == child.ID {
		errs.Add("", ErrInvalidDependency, "parent and child fields cannot be the same")
	}
	if len(errs) > 0 {
		return errs
	}

	available := child.ChoiceLabels()
	for _, key := range d.Keys() {
		if parent.Kind == types.FieldKindCheckbox && key != CheckboxOn && key != CheckboxOff {
			errs.Add("values", ErrInvalidDependency, `parent is a checkbox, allowed keys are "on" and "off": `+key)
		}
		for _, label := range d.Values[key] {
			if !slices.Contains(available, label) {
				errs.Add("values", ErrInvalidDependency, "label is not a choice of the child field: "+label)
			}
		}
	}
	return errs
}

// Keys returns parent values in sorted order
func (d *SelectDependency) Keys() []string {
	keys := make([]string, 0, len(d.Values))
	for k := range d.Values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// PruneLabels drops labels missing from available. It reports whether anything was removed.
func (d *SelectDependency) PruneLabels(available []string) bool {
	var pruned bool
	for key, labels := range d.Values {
		kept := make([]string, 0, len(labels))
		for _, label := range labels {
			if slices.Contains(available, label) {
				kept = append(kept, label)
				continue
			}
			pruned = true
		}
		d.Values[key] = kept
	}
	return pruned
}

// References returns parent and child full titles
func (d *SelectDependency) References() []types.FullTitle {
	return []types.FullTitle{d.Parent, d.Child}
}

// RewriteReferences returns a copy with parent or child renamed
func (d *SelectDependency) RewriteReferences(from, to types.FullTitle) (*SelectDependency, bool) {
	out := d.Clone()
	var changed bool
	if out.Parent == from {
		out.Parent = to
		changed = true
	}
	if out.Child == from {
		out.Child = to
		changed = true
	}
	return out, changed
}

// Clone returns a deep copy
func (d *SelectDependency) Clone() *SelectDependency {
	if d == nil {
		return nil
	}
	out := *d
	if d.Values != nil {
		out.Values = make(map[string][]string, len(d.Values))
		for k, labels := range d.Values {
			out.Values[k] = slices.Clone(labels)
		}
	}
	return &out
}
