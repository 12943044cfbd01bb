package usecase

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/domain/interfaces"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
	"github.com/secmon-lab/utmcraft/pkg/utils/errutil"
	"github.com/secmon-lab/utmcraft/pkg/utils/logging"
	"golang.org/x/sync/singleflight"
)

// EvaluationResult is returned by Evaluate. Hashcode identifies the raw submission.
type EvaluationResult struct {
	Hashcode  types.Hashcode      `json:"hashcode"`
	FormID    types.FormID        `json:"form_id"`
	MainValue string              `json:"main_value"`
	Main      *model.ResultBlock  `json:"main,omitempty"`
	Blocks    []model.ResultBlock `json:"blocks"`
	// Created is false when an identical submission was already stored
	Created bool `json:"created"`
}

// ParsedSubmission decodes a stored link back into the values that produced it
type ParsedSubmission struct {
	Hashcode types.Hashcode        `json:"hashcode"`
	FormID   types.FormID          `json:"form_id"`
	UserID   types.UserID          `json:"user_id"`
	Values   map[string]string     `json:"values"`
	Result   *model.ComputedResult `json:"result,omitempty"`
}

type SubmissionUseCase struct {
	repo     interfaces.Repository
	maxDepth int
	now      func() time.Time
	group    singleflight.Group
}

func NewSubmissionUseCase(repo interfaces.Repository, maxDepth int) *SubmissionUseCase {
	return &SubmissionUseCase{
		repo:     repo,
		maxDepth: maxDepth,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// canUse reports whether userID owns the form or was granted access to it
func canUse(ctx context.Context, repo interfaces.Repository, userID types.UserID, form *model.Form) (bool, error) {
	if form.Owner == userID {
		return true, nil
	}
	ok, err := repo.Access().HasAccess(ctx, userID, form.ID)
	if err != nil {
		return false, goerr.Wrap(err, "failed to check form access",
			goerr.V(UserIDKey, userID),
			goerr.V(FormIDKey, form.ID))
	}
	return ok, nil
}

// usableForm loads the form and checks that userID may submit it
func usableForm(ctx context.Context, repo interfaces.Repository, userID types.UserID, formID types.FormID) (*model.Form, error) {
	form, err := repo.Form().Get(ctx, formID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, goerr.Wrap(ErrFormNotFound, "form not found", goerr.V(FormIDKey, formID))
		}
		return nil, goerr.Wrap(err, "failed to get form", goerr.V(FormIDKey, formID))
	}
	ok, err := canUse(ctx, repo, userID, form)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, goerr.Wrap(ErrAccessDenied, "form is not available to the user",
			goerr.V(UserIDKey, userID),
			goerr.V(FormIDKey, formID))
	}
	return form, nil
}

// Evaluate computes the main value and result blocks of a form submission and
// stores both the raw submission and the computed result. Identical
// submissions share one raw record and one evaluation.
func (uc *SubmissionUseCase) Evaluate(ctx context.Context, userID types.UserID, formID types.FormID, values map[string]string) (*EvaluationResult, error) {
	form, err := usableForm(ctx, uc.repo, userID, formID)
	if err != nil {
		return nil, err
	}

	graph, err := uc.snapshot(ctx)
	if err != nil {
		return nil, uc.fail(ctx, err, userID, formID, values)
	}
	values, err = submittedValues(ctx, graph, form, values)
	if err != nil {
		return nil, uc.fail(ctx, err, userID, formID, values)
	}
	hashcode := model.ComputeHashcode(form.ID, userID, values)

	var executed bool
	v, err, _ := uc.group.Do(string(hashcode), func() (any, error) {
		executed = true
		return uc.evaluate(ctx, graph, form, userID, hashcode, values)
	})
	if err != nil {
		return nil, uc.fail(ctx, err, userID, formID, values)
	}

	// Callers sharing a singleflight result must not alias its slices
	shared := v.(*EvaluationResult)
	out := *shared
	out.Blocks = append([]model.ResultBlock{}, shared.Blocks...)
	if shared.Main != nil {
		main := *shared.Main
		out.Main = &main
	}
	// Only the caller that stored the raw submission reports it as created
	out.Created = shared.Created && executed
	return &out, nil
}

// snapshot loads the definition graph in one transaction so that an
// evaluation never mixes fields from before and after a concurrent rename.
func (uc *SubmissionUseCase) snapshot(ctx context.Context) (*definitionGraph, error) {
	var graph *definitionGraph
	err := uc.repo.RunInTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		g, err := loadGraph(ctx, tx)
		if err != nil {
			return err
		}
		graph = g
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load definition snapshot")
	}
	return graph, nil
}

func (uc *SubmissionUseCase) fail(ctx context.Context, err error, userID types.UserID, formID types.FormID, values map[string]string) error {
	wrapped := goerr.Wrap(err, "failed to evaluate submission",
		goerr.V(UserIDKey, userID),
		goerr.V(FormIDKey, formID),
		goerr.V(ValuesKey, values))
	_ = errutil.Handle(ctx, wrapped, "submission evaluation failed")
	return goerr.Wrap(ErrEvaluationFailed, err.Error(),
		goerr.V(UserIDKey, userID),
		goerr.V(FormIDKey, formID))
}

// submittedValues keeps only values of fields placed in the form UI,
// including typed custom choices. Unknown keys never affect the hashcode.
func submittedValues(ctx context.Context, source fieldSource, form *model.Form, values map[string]string) (map[string]string, error) {
	kept := make(map[string]string, len(values))
	for _, ft := range form.UI.FullTitles() {
		f, err := source.resolve(ctx, ft)
		if err != nil {
			if errors.Is(err, model.ErrReferenceNotFound) {
				continue
			}
			return nil, err
		}
		if v, ok := values[string(f.ID)]; ok {
			kept[string(f.ID)] = v
		}
		if f.Choice != nil && f.Choice.CustomInput {
			if v, ok := values[f.CustomValueKey()]; ok {
				kept[f.CustomValueKey()] = v
			}
		}
	}
	return kept, nil
}

func (uc *SubmissionUseCase) evaluate(ctx context.Context, source fieldSource, form *model.Form, userID types.UserID, hashcode types.Hashcode, values map[string]string) (*EvaluationResult, error) {
	now := uc.now()
	stored, created, err := uc.repo.Submission().PutRaw(ctx, &model.RawSubmission{
		Hashcode:  hashcode,
		FormID:    form.ID,
		UserID:    userID,
		Values:    values,
		CreatedAt: now,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to store raw submission", goerr.V(HashcodeKey, hashcode))
	}
	// A different submission already owns the hashcode. Its result must be kept.
	if !created && !sameSubmission(stored, form.ID, userID, values) {
		return nil, goerr.Wrap(interfaces.ErrConflict, "hashcode is used by another submission",
			goerr.V(HashcodeKey, hashcode),
			goerr.V(FormIDKey, form.ID),
			goerr.V(UserIDKey, userID))
	}

	ev := newEvaluator(source, values, hashcode, uc.maxDepth)
	result := &EvaluationResult{
		Hashcode: hashcode,
		FormID:   form.ID,
		Blocks:   []model.ResultBlock{},
		Created:  created,
	}

	if form.MainResultField != "" {
		main, value, err := uc.mainResult(ctx, source, ev, form, values)
		if err != nil {
			return nil, err
		}
		result.MainValue = value
		result.Main = main
	}

	seen := map[string]bool{}
	for _, ft := range form.ResultFields {
		f, err := source.resolve(ctx, ft)
		if err != nil {
			if errors.Is(err, model.ErrReferenceNotFound) {
				logging.From(ctx).Warn("result field not found", slog.String(model.FullTitleKey, ft.String()))
				continue
			}
			return nil, err
		}
		title := model.ResultBlockTitle(f.ID)
		if seen[title] {
			continue
		}
		seen[title] = true

		value, err := ev.evaluate(ctx, ft)
		if err != nil {
			return nil, err
		}
		if value == "" {
			continue
		}
		result.Blocks = append(result.Blocks, model.ResultBlock{Title: title, Label: f.Label, Value: value})
	}

	if err := uc.storeResult(ctx, userID, result, now); err != nil {
		return nil, err
	}
	return result, nil
}

func sameSubmission(raw *model.RawSubmission, formID types.FormID, userID types.UserID, values map[string]string) bool {
	return raw.FormID == formID && raw.UserID == userID && maps.Equal(raw.Values, values)
}

// mainResult evaluates the main result field and applies URL post-processing
func (uc *SubmissionUseCase) mainResult(ctx context.Context, source fieldSource, ev *evaluator, form *model.Form, values map[string]string) (*model.ResultBlock, string, error) {
	value, err := ev.evaluate(ctx, form.MainResultField)
	if err != nil {
		return nil, "", err
	}

	f, err := source.resolve(ctx, form.MainResultField)
	if err != nil {
		if errors.Is(err, model.ErrReferenceNotFound) {
			return nil, value, nil
		}
		return nil, "", err
	}

	var isError bool
	if form.MainResultIsURL && value != "" {
		forceHTTPS, err := useHTTPS(ctx, source, form, values)
		if err != nil {
			return nil, "", err
		}
		var valid bool
		value, valid = model.CleanURL(value, forceHTTPS)
		isError = !valid
	}
	if value == "" {
		return nil, value, nil
	}
	return &model.ResultBlock{
		Title:   model.ResultBlockTitle(f.ID),
		Label:   f.Label,
		Value:   value,
		IsError: isError,
	}, value, nil
}

// useHTTPS reports whether the form owner's use_https checkbox was submitted checked
func useHTTPS(ctx context.Context, source fieldSource, form *model.Form, values map[string]string) (bool, error) {
	ft := types.NewFieldFullTitle(types.FieldKindCheckbox, model.UseHTTPSTitle, form.Owner)
	f, err := source.resolve(ctx, ft)
	if err != nil {
		if errors.Is(err, model.ErrReferenceNotFound) {
			return false, nil
		}
		return false, err
	}
	return values[string(f.ID)] != "", nil
}

func (uc *SubmissionUseCase) storeResult(ctx context.Context, userID types.UserID, result *EvaluationResult, now time.Time) error {
	createdAt := now
	existing, err := uc.repo.Submission().GetResult(ctx, result.Hashcode)
	switch {
	case err == nil:
		createdAt = existing.CreatedAt
	case !errors.Is(err, interfaces.ErrNotFound):
		return goerr.Wrap(err, "failed to get computed result", goerr.V(HashcodeKey, result.Hashcode))
	}

	computed := &model.ComputedResult{
		Hashcode:  result.Hashcode,
		FormID:    result.FormID,
		UserID:    userID,
		MainValue: result.MainValue,
		Main:      result.Main,
		Blocks:    result.Blocks,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}
	if err := uc.repo.Submission().PutResult(ctx, computed); err != nil {
		return goerr.Wrap(err, "failed to store computed result", goerr.V(HashcodeKey, result.Hashcode))
	}
	return nil
}

// Resolve evaluates a single field reference against submitted values. ref
// may be given with or without the leading "$".
func (uc *SubmissionUseCase) Resolve(ctx context.Context, ref string, values map[string]string, hashcode types.Hashcode) (string, error) {
	ft, ok := types.ParseReference(ref)
	if !ok {
		ft = types.FullTitle(ref)
	}
	v, err := newEvaluator(newRegistry(uc.repo), values, hashcode, uc.maxDepth).evaluate(ctx, ft)
	if err != nil {
		return "", goerr.Wrap(ErrEvaluationFailed, err.Error(), goerr.V(model.FullTitleKey, ft))
	}
	return v, nil
}

// Parse returns the stored values behind a hashcode. The caller must have
// submitted it or be able to use its form.
func (uc *SubmissionUseCase) Parse(ctx context.Context, userID types.UserID, hashcode types.Hashcode) (*ParsedSubmission, error) {
	raw, err := uc.repo.Submission().GetRaw(ctx, hashcode)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, goerr.Wrap(ErrSubmissionNotFound, "submission not found", goerr.V(HashcodeKey, hashcode))
		}
		return nil, goerr.Wrap(err, "failed to get raw submission", goerr.V(HashcodeKey, hashcode))
	}

	if raw.UserID != userID {
		if _, err := usableForm(ctx, uc.repo, userID, raw.FormID); err != nil {
			if errors.Is(err, ErrFormNotFound) {
				return nil, goerr.Wrap(ErrAccessDenied, "form of the submission no longer exists", goerr.V(HashcodeKey, hashcode))
			}
			return nil, err
		}
	}

	parsed := &ParsedSubmission{
		Hashcode: raw.Hashcode,
		FormID:   raw.FormID,
		UserID:   raw.UserID,
		Values:   raw.Values,
	}
	result, err := uc.repo.Submission().GetResult(ctx, hashcode)
	switch {
	case err == nil:
		parsed.Result = result
	case !errors.Is(err, interfaces.ErrNotFound):
		return nil, goerr.Wrap(err, "failed to get computed result", goerr.V(HashcodeKey, hashcode))
	}
	return parsed, nil
}

// History lists computed results of a user, newest first. A non-empty query
// keeps results whose hashcode, main value or block values contain it.
func (uc *SubmissionUseCase) History(ctx context.Context, userID types.UserID, query string, limit int) ([]*model.ComputedResult, error) {
	fetchLimit := limit
	if query != "" {
		fetchLimit = 0
	}
	results, err := uc.repo.Submission().ListResults(ctx, userID, fetchLimit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list computed results", goerr.V(UserIDKey, userID))
	}
	if query == "" {
		return results, nil
	}

	matched := make([]*model.ComputedResult, 0, len(results))
	for _, r := range results {
		if !r.Matches(query) {
			continue
		}
		matched = append(matched, r)
		if limit > 0 && len(matched) == limit {
			break
		}
	}
	return matched, nil
}
