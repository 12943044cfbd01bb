package usecase

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
	"github.com/secmon-lab/utmcraft/pkg/utils/logging"
)

// LayoutCell describes one widget of the form UI. A cell with an empty
// FieldID is a placeholder.
type LayoutCell struct {
	FieldID     types.FieldID   `json:"field_id,omitempty"`
	FullTitle   types.FullTitle `json:"full_title,omitempty"`
	Kind        types.FieldKind `json:"kind,omitempty"`
	Label       string          `json:"label,omitempty"`
	Required    bool            `json:"required,omitempty"`
	Initial     string          `json:"initial,omitempty"`
	Checked     bool            `json:"checked,omitempty"`
	Placeholder string          `json:"placeholder,omitempty"`
	Tooltip     string          `json:"tooltip,omitempty"`
	Choices     []model.Choice  `json:"choices,omitempty"`
	Searchable  bool            `json:"searchable,omitempty"`
	// CustomInputKey is the value key of the paired text input shown when
	// the custom choice is selected
	CustomInputKey string `json:"custom_input_key,omitempty"`
}

// LayoutDependency tells the UI which child labels to show per parent value
type LayoutDependency struct {
	Parent types.FieldID       `json:"parent"`
	Child  types.FieldID       `json:"child"`
	Values map[string][]string `json:"values"`
}

type FormLayout struct {
	FormID       types.FormID       `json:"form_id"`
	Title        string             `json:"title"`
	Rows         [][]LayoutCell     `json:"rows"`
	Dependencies []LayoutDependency `json:"dependencies,omitempty"`
}

// Layout returns presentation metadata for a form the user can use
func (uc *FormUseCase) Layout(ctx context.Context, userID types.UserID, formID types.FormID) (*FormLayout, error) {
	form, err := usableForm(ctx, uc.repo, userID, formID)
	if err != nil {
		return nil, err
	}

	reg := newRegistry(uc.repo)
	layout := &FormLayout{FormID: form.ID, Title: form.Title}
	for _, row := range form.UI {
		cells := make([]LayoutCell, 0, len(row))
		for _, cell := range row {
			ft, ok := types.ParseReference(cell)
			if !ok {
				cells = append(cells, LayoutCell{})
				continue
			}
			field, err := reg.resolve(ctx, ft)
			if err != nil {
				if errors.Is(err, model.ErrReferenceNotFound) {
					logging.From(ctx).Warn("form UI references unknown field", "form_id", form.ID, "full_title", ft)
					cells = append(cells, LayoutCell{})
					continue
				}
				return nil, err
			}
			cells = append(cells, layoutCell(field))
		}
		layout.Rows = append(layout.Rows, cells)
	}

	deps, err := uc.repo.Dependency().GetMany(ctx, form.SelectDependencies)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get select dependencies", goerr.V(FormIDKey, form.ID))
	}
	for _, d := range deps {
		parent, err := reg.resolve(ctx, d.Parent)
		if errors.Is(err, model.ErrReferenceNotFound) {
			continue
		} else if err != nil {
			return nil, err
		}
		child, err := reg.resolve(ctx, d.Child)
		if errors.Is(err, model.ErrReferenceNotFound) {
			continue
		} else if err != nil {
			return nil, err
		}
		layout.Dependencies = append(layout.Dependencies, LayoutDependency{
			Parent: parent.ID,
			Child:  child.ID,
			Values: d.Clone().Values,
		})
	}
	return layout, nil
}

func layoutCell(f *model.Field) LayoutCell {
	cell := LayoutCell{
		FieldID:   f.ID,
		FullTitle: f.FullTitle,
		Kind:      f.Kind,
		Label:     f.Label,
		Required:  f.IsRequired(),
	}
	switch {
	case f.Input != nil:
		cell.Initial = f.Input.Initial
		cell.Placeholder = f.Input.Placeholder
		cell.Tooltip = f.Input.Tooltip
	case f.Checkbox != nil:
		cell.Checked = f.Checkbox.Initial
	case f.Choice != nil:
		cell.Initial = f.Choice.Initial
		cell.Choices = f.OrderedChoices()
		cell.Searchable = f.Choice.Searchable
		if f.Choice.CustomInput {
			cell.CustomInputKey = f.CustomValueKey()
		}
	}
	return cell
}
