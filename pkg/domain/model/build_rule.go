package model

import (
	"encoding/json"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
)

// BuildRule is an ordered list of literal constants and "$full_title" references
type BuildRule []string

// UnmarshalJSON rejects anything but a list of strings so that malformed
// rules surface as ErrMalformedBuildRule instead of a generic decode error.
func (r *BuildRule) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return goerr.Wrap(ErrMalformedBuildRule, "build rule is not valid JSON", goerr.V("error", err.Error()))
	}
	if raw == nil {
		*r = nil
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return goerr.Wrap(ErrMalformedBuildRule, "build rule must be a list of strings", goerr.V("value", raw))
	}
	rule := make(BuildRule, 0, len(list))
	for _, elem := range list {
		s, ok := elem.(string)
		if !ok {
			return goerr.Wrap(ErrMalformedBuildRule, "build rule element must be a string", goerr.V("element", elem))
		}
		rule = append(rule, s)
	}
	*r = rule
	return nil
}

// Clean trims every element, drops empty ones and normalizes references to "$full_title".
func (r BuildRule) Clean() BuildRule {
	if len(r) == 0 {
		return nil
	}
	cleaned := make(BuildRule, 0, len(r))
	for _, elem := range r {
		elem = strings.TrimSpace(elem)
		if elem == "" {
			continue
		}
		if ft, ok := types.ParseReference(elem); ok {
			cleaned = append(cleaned, ft.Ref())
			continue
		}
		cleaned = append(cleaned, elem)
	}
	return cleaned
}

// References returns the referenced full titles in rule order
func (r BuildRule) References() []types.FullTitle {
	var refs []types.FullTitle
	for _, elem := range r {
		if ft, ok := types.ParseReference(elem); ok {
			refs = append(refs, ft)
		}
	}
	return refs
}

// Rewrite replaces references to from with to. The second value reports whether anything changed.
func (r BuildRule) Rewrite(from, to types.FullTitle) (BuildRule, bool) {
	var changed bool
	out := make(BuildRule, len(r))
	for i, elem := range r {
		if ft, ok := types.ParseReference(elem); ok && ft == from {
			out[i] = to.Ref()
			changed = true
			continue
		}
		out[i] = elem
	}
	return out, changed
}

// Contains reports whether the rule references ft
func (r BuildRule) Contains(ft types.FullTitle) bool {
	for _, ref := range r.References() {
		if ref == ft {
			return true
		}
	}
	return false
}

func (r BuildRule) clone() BuildRule {
	if r == nil {
		return nil
	}
	out := make(BuildRule, len(r))
	copy(out, r)
	return out
}
