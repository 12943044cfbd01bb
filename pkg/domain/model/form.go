package model

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/secmon-lab/utmcraft/pkg/domain/types"
)

// MaxRowWidth is the maximum number of cells in one form UI row
const MaxRowWidth = 6

// UIGrid is the rows by columns layout of a form. A cell is either a
// "$full_title" reference to a leaf field or an empty placeholder.
type UIGrid [][]string

// Form combines visible leaf fields with the result fields computed from them
type Form struct {
	ID                 types.FormID         `json:"id"`
	Title              string               `json:"title"`
	FullTitle          types.FullTitle      `json:"full_title"`
	Owner              types.UserID         `json:"owner"`
	Comment            string               `json:"comment,omitempty"`
	UI                 UIGrid               `json:"ui"`
	MainResultField    types.FullTitle      `json:"main_result_field"`
	MainResultIsURL    bool                 `json:"main_result_is_url"`
	ResultFields       []types.FullTitle    `json:"result_fields,omitempty"`
	SelectDependencies []types.DependencyID `json:"select_dependencies,omitempty"`
	Version            int64                `json:"version"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// Normalize trims titles, derives FullTitle, normalizes references and drops
// duplicate result fields and dependencies keeping the first occurrence.
func (f *Form) Normalize() {
	f.Title = types.NormalizeTitle(f.Title)
	if f.Title != "" && f.Owner != "" {
		f.FullTitle = types.NewFullTitle(f.Title, f.Owner)
	}
	if ft, ok := types.ParseReference(string(f.MainResultField)); ok {
		f.MainResultField = ft
	}

	var results []types.FullTitle
	for _, ft := range f.ResultFields {
		if ref, ok := types.ParseReference(string(ft)); ok {
			ft = ref
		}
		ft = types.FullTitle(strings.TrimSpace(string(ft)))
		if ft != "" && !slices.Contains(results, ft) {
			results = append(results, ft)
		}
	}
	f.ResultFields = results

	var deps []types.DependencyID
	for _, id := range f.SelectDependencies {
		if id != "" && !slices.Contains(deps, id) {
			deps = append(deps, id)
		}
	}
	f.SelectDependencies = deps
}

// Clean checks the grid structure and returns it with blank rows removed and
// cells trimmed. Whether references resolve to leaf fields is left to the caller.
func (g UIGrid) Clean() (UIGrid, ValidationErrors) {
	var errs ValidationErrors
	var cleaned UIGrid
	counter := map[string]int{}
	var reused []string

	for i, row := range g {
		if len(row) == 0 {
			continue
		}
		if len(row) > MaxRowWidth {
			errs.Add("ui", ErrRowTooWide, fmt.Sprintf("row #%d has %d cells, at most %d are allowed", i+1, len(row), MaxRowWidth))
			continue
		}
		cleanRow := make([]string, 0, len(row))
		for pos, cell := range row {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				cleanRow = append(cleanRow, "")
				continue
			}
			ft, ok := types.ParseReference(cell)
			if !ok {
				errs.Add("ui", ErrInvalidUI, fmt.Sprintf("cell %d of row #%d must be a field reference starting with '$' or empty: %s", pos+1, i+1, cell))
				continue
			}
			cleanRow = append(cleanRow, ft.Ref())
			counter[ft.Ref()]++
			if counter[ft.Ref()] == 2 {
				reused = append(reused, ft.Ref())
			}
		}
		if len(cleanRow) > 0 {
			cleaned = append(cleaned, cleanRow)
		}
	}

	if len(reused) > 0 {
		errs.Add("ui", ErrInvalidUI, "fields are used more than once: "+strings.Join(reused, ", "))
	}
	if len(errs) == 0 && len(cleaned.FullTitles()) == 0 {
		errs.Add("ui", ErrInvalidUI, "form UI must contain at least one field")
	}
	return cleaned, errs
}

// FullTitles returns referenced fields in reading order
func (g UIGrid) FullTitles() []types.FullTitle {
	var fts []types.FullTitle
	for _, row := range g {
		for _, cell := range row {
			if ft, ok := types.ParseReference(cell); ok {
				fts = append(fts, ft)
			}
		}
	}
	return fts
}

// Set returns referenced fields as a set
func (g UIGrid) Set() map[types.FullTitle]bool {
	set := map[types.FullTitle]bool{}
	for _, ft := range g.FullTitles() {
		set[ft] = true
	}
	return set
}

// Contains reports whether ft is placed in the grid
func (g UIGrid) Contains(ft types.FullTitle) bool {
	return slices.Contains(g.FullTitles(), ft)
}

// ReferencedIn returns input names ("ui", "main_result_field", "result_fields") referring to ft
func (f *Form) ReferencedIn(ft types.FullTitle) []string {
	var where []string
	if f.UI.Contains(ft) {
		where = append(where, "ui")
	}
	if f.MainResultField == ft {
		where = append(where, "main_result_field")
	}
	if slices.Contains(f.ResultFields, ft) {
		where = append(where, "result_fields")
	}
	return where
}

// UsesResultField reports whether ft is the main result or one of the result fields
func (f *Form) UsesResultField(ft types.FullTitle) bool {
	return f.MainResultField == ft || slices.Contains(f.ResultFields, ft)
}

// RewriteReferences returns a copy with every reference to from replaced by to
func (f *Form) RewriteReferences(from, to types.FullTitle) (*Form, bool) {
	out := f.Clone()
	var changed bool
	for i, row := range out.UI {
		for j, cell := range row {
			if ft, ok := types.ParseReference(cell); ok && ft == from {
				out.UI[i][j] = to.Ref()
				changed = true
			}
		}
	}
	if out.MainResultField == from {
		out.MainResultField = to
		changed = true
	}
	for i, ft := range out.ResultFields {
		if ft == from {
			out.ResultFields[i] = to
			changed = true
		}
	}
	return out, changed
}

// Clone returns a deep copy
func (f *Form) Clone() *Form {
	if f == nil {
		return nil
	}
	out := *f
	if f.UI != nil {
		out.UI = make(UIGrid, len(f.UI))
		for i, row := range f.UI {
			out.UI[i] = slices.Clone(row)
		}
	}
	out.ResultFields = slices.Clone(f.ResultFields)
	out.SelectDependencies = slices.Clone(f.SelectDependencies)
	return &out
}
