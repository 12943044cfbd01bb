package usecase

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
)

// validator runs graph level checks. Memoized results live as long as the
// validator, which is created for one validation pass.
type validator struct {
	source   fieldSource
	leafMemo map[types.FullTitle]map[types.FullTitle]bool
	visiting map[types.FullTitle]bool
}

func newValidator(source fieldSource) *validator {
	return &validator{
		source:   source,
		leafMemo: make(map[types.FullTitle]map[types.FullTitle]bool),
		visiting: make(map[types.FullTitle]bool),
	}
}

// lookup returns nil without error when ft does not resolve
func (v *validator) lookup(ctx context.Context, ft types.FullTitle) (*model.Field, error) {
	f, err := v.source.resolve(ctx, ft)
	if err != nil {
		if errors.Is(err, model.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return f, nil
}

// checkReferences reports references of f that do not resolve to a stored field
func (v *validator) checkReferences(ctx context.Context, f *model.Field) (model.ValidationErrors, error) {
	var errs model.ValidationErrors
	for _, ref := range f.References() {
		if ref == f.FullTitle {
			continue
		}
		target, err := v.lookup(ctx, ref)
		if err != nil {
			return nil, err
		}
		if target == nil {
			for _, name := range f.ReferencedIn(ref) {
				errs.Add(name, model.ErrReferenceNotFound, "field not found: "+ref.Ref())
			}
		}
	}
	return errs, nil
}

// checkCycle walks the references of root and reports the first chain that
// leads back to root. Direct self references are reported by Field.Validate.
func (v *validator) checkCycle(ctx context.Context, root *model.Field) (model.ValidationErrors, error) {
	visited := map[types.FullTitle]bool{root.FullTitle: true}

	var walk func(f *model.Field, chain []types.FullTitle) ([]types.FullTitle, error)
	walk = func(f *model.Field, chain []types.FullTitle) ([]types.FullTitle, error) {
		for _, ref := range f.References() {
			if ref == root.FullTitle {
				if len(chain) == 1 {
					continue
				}
				return append(slices.Clone(chain), ref), nil
			}
			if visited[ref] {
				continue
			}
			visited[ref] = true

			if kind, ok := ref.Kind(); !ok || !kind.IsResult() {
				continue
			}
			next, err := v.lookup(ctx, ref)
			if err != nil {
				return nil, err
			}
			if next == nil {
				continue
			}
			found, err := walk(next, append(chain, ref))
			if err != nil || found != nil {
				return found, err
			}
		}
		return nil, nil
	}

	chain, err := walk(root, []types.FullTitle{root.FullTitle})
	if err != nil {
		return nil, err
	}

	var errs model.ValidationErrors
	if chain != nil {
		name := "build_rule"
		if where := root.ReferencedIn(chain[1]); len(where) > 0 {
			name = where[0]
		}
		errs.Add(name, model.ErrCycleDetected, "reference cycle: "+formatChain(chain))
	}
	return errs, nil
}

// formatChain renders "$a →️ $b → ❗️$a"
func formatChain(chain []types.FullTitle) string {
	var b strings.Builder
	for i, ft := range chain {
		switch {
		case i == 0:
		case i == len(chain)-1:
			b.WriteString(" → ❗️")
		default:
			b.WriteString(" →️ ")
		}
		b.WriteString(ft.Ref())
	}
	return b.String()
}

// leafDependencies returns every leaf full title ft transitively reads. A
// leaf depends on itself. Unresolvable computed references contribute nothing.
func (v *validator) leafDependencies(ctx context.Context, ft types.FullTitle) (map[types.FullTitle]bool, error) {
	kind, ok := ft.Kind()
	if !ok {
		return map[types.FullTitle]bool{}, nil
	}
	if kind.IsLeaf() {
		return map[types.FullTitle]bool{ft: true}, nil
	}
	if leaves, ok := v.leafMemo[ft]; ok {
		return leaves, nil
	}
	if v.visiting[ft] {
		return map[types.FullTitle]bool{}, nil
	}
	v.visiting[ft] = true
	defer delete(v.visiting, ft)

	f, err := v.lookup(ctx, ft)
	if err != nil {
		return nil, err
	}
	leaves := map[types.FullTitle]bool{}
	if f != nil {
		for _, ref := range f.References() {
			sub, err := v.leafDependencies(ctx, ref)
			if err != nil {
				return nil, err
			}
			for leaf := range sub {
				leaves[leaf] = true
			}
		}
	}
	v.leafMemo[ft] = leaves
	return leaves, nil
}

// checkAvailability verifies that the form UI holds every leaf field needed by
// its result fields and select dependencies.
func (v *validator) checkAvailability(ctx context.Context, form *model.Form, deps []*model.SelectDependency) (model.ValidationErrors, error) {
	var errs model.ValidationErrors
	ui := form.UI.Set()

	require := func(ft types.FullTitle, name string) error {
		kind, ok := ft.Kind()
		if !ok {
			errs.Add(name, model.ErrReferenceNotFound, "field not found: "+ft.Ref())
			return nil
		}
		if kind.IsLeaf() {
			if !ui[ft] {
				errs.Add(name, model.ErrMissingUIField, "add "+ft.Ref()+" to the form UI")
			}
			return nil
		}

		f, err := v.lookup(ctx, ft)
		if err != nil {
			return err
		}
		if f == nil {
			errs.Add(name, model.ErrReferenceNotFound, "field not found: "+ft.Ref())
			return nil
		}
		leaves, err := v.leafDependencies(ctx, ft)
		if err != nil {
			return err
		}
		var missing []string
		for leaf := range leaves {
			if !ui[leaf] {
				missing = append(missing, leaf.Ref())
			}
		}
		if len(missing) > 0 {
			slices.Sort(missing)
			errs.Add(name, model.ErrMissingUIField,
				"to use "+ft.Ref()+" add the following fields to the form UI: "+strings.Join(missing, ", "))
		}
		return nil
	}

	if form.MainResultField != "" {
		if err := require(form.MainResultField, "main_result_field"); err != nil {
			return nil, err
		}
	}
	for _, ft := range form.ResultFields {
		if err := require(ft, "result_fields"); err != nil {
			return nil, err
		}
	}

	children := map[types.FullTitle]int{}
	var reused []string
	for _, d := range deps {
		children[d.Child]++
		if children[d.Child] == 2 {
			reused = append(reused, d.Child.Ref())
		}
		for _, ft := range d.References() {
			if err := require(ft, "select_dependencies"); err != nil {
				return nil, err
			}
		}
	}
	if len(reused) > 0 {
		errs.Add("select_dependencies", model.ErrDuplicateDependency,
			"a select field may depend on one parent only: "+strings.Join(reused, ", "))
	}
	return errs, nil
}

// wrapValidation converts non-empty validation errors into an error carrying
// the entity identity.
func wrapValidation(errs model.ValidationErrors, msg string, opts ...goerr.Option) error {
	if len(errs) == 0 {
		return nil
	}
	return goerr.Wrap(errs, msg, opts...)
}
