package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
	"github.com/secmon-lab/utmcraft/pkg/utils/logging"
)

// DefaultMaxEvaluationDepth bounds reference recursion. Validated graphs are
// acyclic, so reaching it means stored definitions are corrupted.
const DefaultMaxEvaluationDepth = 64

// evaluator computes field values of one submission. Each full title is
// computed at most once per evaluator.
type evaluator struct {
	source   fieldSource
	values   map[string]string
	hashcode types.Hashcode
	maxDepth int
	memo     map[types.FullTitle]string
}

func newEvaluator(source fieldSource, values map[string]string, hashcode types.Hashcode, maxDepth int) *evaluator {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxEvaluationDepth
	}
	return &evaluator{
		source:   source,
		values:   values,
		hashcode: hashcode,
		maxDepth: maxDepth,
		memo:     make(map[types.FullTitle]string),
	}
}

// evaluate returns the final value of ft. Unresolvable references are logged
// and evaluate to an empty string. Errors are internal failures only.
func (e *evaluator) evaluate(ctx context.Context, ft types.FullTitle) (string, error) {
	return e.eval(ctx, ft, 0)
}

func (e *evaluator) eval(ctx context.Context, ft types.FullTitle, depth int) (string, error) {
	if v, ok := e.memo[ft]; ok {
		return v, nil
	}
	if depth > e.maxDepth {
		return "", goerr.Wrap(model.ErrRecursionLimit, "field references are nested too deeply",
			goerr.V(model.FullTitleKey, ft),
			goerr.V("max_depth", e.maxDepth))
	}

	f, err := e.source.resolve(ctx, ft)
	if err != nil {
		if errors.Is(err, model.ErrReferenceNotFound) {
			logging.From(ctx).Warn("reference not found while evaluating",
				slog.String(model.FullTitleKey, ft.String()),
				slog.String(model.HashcodeKey, e.hashcode.String()))
			return "", nil
		}
		return "", goerr.Wrap(err, "failed to resolve field", goerr.V(model.FullTitleKey, ft))
	}

	var v string
	switch f.Kind {
	case types.FieldKindCombined:
		v, err = e.evalRule(ctx, f, f.Combined.BuildRule, depth)
	case types.FieldKindLookupTable:
		v, err = e.evalLookup(ctx, f, depth)
	default:
		v = e.evalLeaf(f)
	}
	if err != nil {
		return "", err
	}

	e.memo[ft] = v
	return v, nil
}

func (e *evaluator) evalLeaf(f *model.Field) string {
	raw := e.values[string(f.ID)]
	if raw == "" {
		return ""
	}

	switch f.Kind {
	case types.FieldKindCheckbox:
		raw = f.Title
	case types.FieldKindRadiobutton, types.FieldKindSelect:
		if raw == model.CustomInputValue {
			raw = e.values[f.CustomValueKey()]
		}
	}
	return model.TransformValue(raw, f.Value, e.hashcode)
}

func (e *evaluator) evalRule(ctx context.Context, f *model.Field, rule model.BuildRule, depth int) (string, error) {
	parts := make([]string, 0, len(rule))
	for _, elem := range rule {
		v := strings.TrimSpace(elem)
		if ref, ok := types.ParseReference(elem); ok {
			var err error
			if v, err = e.eval(ctx, ref, depth+1); err != nil {
				return "", err
			}
		}
		if v == "" && f.Result.RemoveBlankValues {
			continue
		}
		parts = append(parts, v)
	}
	return model.TransformValue(strings.Join(parts, f.Result.Separator), f.Value, e.hashcode), nil
}

func (e *evaluator) evalLookup(ctx context.Context, f *model.Field, depth int) (string, error) {
	rule := f.Lookup.DefaultValue
	if depends := f.Lookup.DependsField; depends != "" {
		key, err := e.eval(ctx, depends, depth+1)
		if err != nil {
			return "", err
		}
		matched, ok := f.Lookup.LookupValues[key]
		if !ok && key != "" {
			if kind, _ := depends.Kind(); kind == types.FieldKindCheckbox {
				matched, ok = f.Lookup.LookupValues[model.CheckboxOn]
			}
		}
		if ok {
			rule = matched
		}
	}
	return e.evalRule(ctx, f, rule, depth)
}
