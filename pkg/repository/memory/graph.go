package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/domain/interfaces"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
)

// graphStore keeps fields, forms and dependencies together so that one
// transaction can change all of them atomically.
type graphStore struct {
	// txMu serializes writers for the whole read-modify-write cycle
	txMu sync.Mutex
	mu   sync.RWMutex

	fields       map[types.FieldID]*model.Field
	forms        map[types.FormID]*model.Form
	dependencies map[types.DependencyID]*model.SelectDependency
}

func newGraphStore() *graphStore {
	return &graphStore{
		fields:       make(map[types.FieldID]*model.Field),
		forms:        make(map[types.FormID]*model.Form),
		dependencies: make(map[types.DependencyID]*model.SelectDependency),
	}
}

func (g *graphStore) runInTransaction(ctx context.Context, fn func(ctx context.Context, tx interfaces.Transaction) error) error {
	g.txMu.Lock()
	defer g.txMu.Unlock()

	tx := &transaction{graph: g}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return g.commit(tx.ops)
}

func (g *graphStore) commit(ops []txOp) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	fields := maps.Clone(g.fields)
	forms := maps.Clone(g.forms)
	deps := maps.Clone(g.dependencies)

	for _, op := range ops {
		switch {
		case op.field != nil:
			fields[op.field.ID] = op.field
		case op.form != nil:
			forms[op.form.ID] = op.form
		case op.dependency != nil:
			deps[op.dependency.ID] = op.dependency
		case op.deleteField != "":
			delete(fields, op.deleteField)
		case op.deleteForm != "":
			delete(forms, op.deleteForm)
		case op.deleteDependency != "":
			delete(deps, op.deleteDependency)
		}
	}

	if err := checkUniqueFieldTitles(fields); err != nil {
		return err
	}

	g.fields = fields
	g.forms = forms
	g.dependencies = deps
	return nil
}

func checkUniqueFieldTitles(fields map[types.FieldID]*model.Field) error {
	seen := make(map[types.FullTitle]types.FieldID, len(fields))
	for id, f := range fields {
		if other, ok := seen[f.FullTitle]; ok {
			return goerr.Wrap(ErrConflict, "duplicated field full title",
				goerr.V("full_title", f.FullTitle),
				goerr.V("ids", []types.FieldID{other, id}))
		}
		seen[f.FullTitle] = id
	}
	return nil
}

type txOp struct {
	field            *model.Field
	form             *model.Form
	dependency       *model.SelectDependency
	deleteField      types.FieldID
	deleteForm       types.FormID
	deleteDependency types.DependencyID
}

// transaction stages writes and applies them on commit. Reads see the
// committed state only.
type transaction struct {
	graph *graphStore
	ops   []txOp
}

var _ interfaces.Transaction = &transaction{}

func (t *transaction) ListFields(ctx context.Context) ([]*model.Field, error) {
	t.graph.mu.RLock()
	defer t.graph.mu.RUnlock()

	out := make([]*model.Field, 0, len(t.graph.fields))
	for _, f := range t.graph.fields {
		out = append(out, f.Clone())
	}
	return out, nil
}

func (t *transaction) ListForms(ctx context.Context) ([]*model.Form, error) {
	t.graph.mu.RLock()
	defer t.graph.mu.RUnlock()

	out := make([]*model.Form, 0, len(t.graph.forms))
	for _, f := range t.graph.forms {
		out = append(out, f.Clone())
	}
	return out, nil
}

func (t *transaction) ListDependencies(ctx context.Context) ([]*model.SelectDependency, error) {
	t.graph.mu.RLock()
	defer t.graph.mu.RUnlock()

	out := make([]*model.SelectDependency, 0, len(t.graph.dependencies))
	for _, d := range t.graph.dependencies {
		out = append(out, d.Clone())
	}
	return out, nil
}

func (t *transaction) PutField(ctx context.Context, f *model.Field) error {
	t.ops = append(t.ops, txOp{field: f.Clone()})
	return nil
}

func (t *transaction) DeleteField(ctx context.Context, id types.FieldID) error {
	t.ops = append(t.ops, txOp{deleteField: id})
	return nil
}

func (t *transaction) PutForm(ctx context.Context, f *model.Form) error {
	t.ops = append(t.ops, txOp{form: f.Clone()})
	return nil
}

func (t *transaction) DeleteForm(ctx context.Context, id types.FormID) error {
	t.ops = append(t.ops, txOp{deleteForm: id})
	return nil
}

func (t *transaction) PutDependency(ctx context.Context, d *model.SelectDependency) error {
	t.ops = append(t.ops, txOp{dependency: d.Clone()})
	return nil
}

func (t *transaction) DeleteDependency(ctx context.Context, id types.DependencyID) error {
	t.ops = append(t.ops, txOp{deleteDependency: id})
	return nil
}
