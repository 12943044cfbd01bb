package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/utmcraft/pkg/domain/interfaces"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
	"github.com/secmon-lab/utmcraft/pkg/repository/memory"
	"github.com/secmon-lab/utmcraft/pkg/usecase"
)

func TestSubmissionUseCase_Resolve(t *testing.T) {
	uc := newUseCases(t)
	ctx := context.Background()

	foo := mustCreateField(t, uc, inputField("foo"))
	source := mustCreateField(t, uc, inputField("source"))
	geo := mustCreateField(t, uc, checkboxField("is_geo"))
	mustCreateField(t, uc, combinedField("foo_x", "$it-foo-alice", "x"))
	mustCreateField(t, uc, combinedField("sparse", "$it-foo-alice", "$it-source-alice", "end"))
	mustCreateField(t, uc, lookupField("channel", "$it-source-alice",
		map[string]model.BuildRule{"google": {"cpc"}}, "other"))
	mustCreateField(t, uc, lookupField("geo", "$ch-is_geo-alice",
		map[string]model.BuildRule{"on": {"geo"}}, "nogeo"))

	city := selectField("city", map[string]string{"Kazan": "kzn"})
	city.Choice.CustomInput = true
	city = mustCreateField(t, uc, city)

	greeting := inputField("greeting")
	greeting.Value = &model.ValueSettings{
		CleanValue:    true,
		CharsSettings: types.CharsSettingsTransliterate,
		AddHash:       true,
		HashSeparator: "~",
	}
	greeting = mustCreateField(t, uc, greeting)

	testCases := []struct {
		name   string
		ref    string
		values map[string]string
		want   string
	}{
		{
			name:   "combined joins with separator",
			ref:    "$co-foo_x-alice",
			values: map[string]string{string(foo.ID): "Foo"},
			want:   "foo_x",
		},
		{
			name:   "blank values are removed",
			ref:    "$co-sparse-alice",
			values: map[string]string{string(source.ID): "Google"},
			want:   "google_end",
		},
		{
			name:   "lookup by depends field value",
			ref:    "lt-channel-alice",
			values: map[string]string{string(source.ID): "google"},
			want:   "cpc",
		},
		{
			name:   "lookup falls back to default",
			ref:    "lt-channel-alice",
			values: map[string]string{string(source.ID): "yandex"},
			want:   "other",
		},
		{
			name:   "checked checkbox matches on key",
			ref:    "lt-geo-alice",
			values: map[string]string{string(geo.ID): "1"},
			want:   "geo",
		},
		{
			name:   "unchecked checkbox uses default",
			ref:    "lt-geo-alice",
			values: map[string]string{},
			want:   "nogeo",
		},
		{
			name: "custom choice value",
			ref:  "se-city-alice",
			values: map[string]string{
				string(city.ID):       model.CustomInputValue,
				city.CustomValueKey(): "Москва",
			},
			want: "moskva",
		},
		{
			name:   "transform order",
			ref:    "it-greeting-alice",
			values: map[string]string{string(greeting.ID): "Привет Мир?"},
			want:   "privet_mir~abcd1234",
		},
		{
			name:   "unknown reference is empty",
			ref:    "$co-missing-alice",
			values: map[string]string{},
			want:   "",
		},
		{
			name:   "unknown type code is empty",
			ref:    "$zz-foo-alice",
			values: map[string]string{},
			want:   "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := uc.Submission.Resolve(ctx, tc.ref, tc.values, "abcd1234")
			gt.NoError(t, err).Required()
			gt.Value(t, got).Equal(tc.want)
		})
	}
}

func TestSubmissionUseCase_RecursionLimit(t *testing.T) {
	uc := usecase.New(memory.New(), usecase.WithMaxEvaluationDepth(1))
	ctx := context.Background()
	c := mustCreateField(t, uc, inputField("c"))
	mustCreateField(t, uc, combinedField("b", "$it-c-alice"))
	mustCreateField(t, uc, combinedField("a", "$co-b-alice"))

	got, err := uc.Submission.Resolve(ctx, "co-b-alice", map[string]string{string(c.ID): "v"}, "")
	gt.NoError(t, err).Required()
	gt.Value(t, got).Equal("v")

	_, err = uc.Submission.Resolve(ctx, "co-a-alice", map[string]string{string(c.ID): "v"}, "")
	gt.Bool(t, errors.Is(err, usecase.ErrEvaluationFailed)).True()
}

type urlForm struct {
	uc       *usecase.UseCases
	form     *model.Form
	url      *model.Field
	source   *model.Field
	useHTTPS *model.Field
	channel  *model.Field
}

func setupURLForm(t *testing.T) *urlForm {
	uc := newUseCases(t)
	url := mustCreateField(t, uc, rawValue(inputField("url")))
	source := mustCreateField(t, uc, inputField("source"))
	useHTTPS := mustCreateField(t, uc, checkboxField(model.UseHTTPSTitle))

	link := rawValue(combinedField("link",
		"$it-url-alice", "?utm_source=", "$it-source-alice", "?utm_medium=x"))
	link.Result = &model.ResultSettings{Separator: "", RemoveBlankValues: true}
	link = mustCreateField(t, uc, link)
	channel := mustCreateField(t, uc, lookupField("channel", "$it-source-alice",
		map[string]model.BuildRule{"google": {"cpc"}}))

	form := newForm("landing", model.UIGrid{
		{"$it-url-alice", "$it-source-alice"},
		{"$ch-use_https-alice"},
	}, link.FullTitle, channel.FullTitle)
	form.MainResultIsURL = true
	form = mustCreateForm(t, uc, form)

	return &urlForm{uc: uc, form: form, url: url, source: source, useHTTPS: useHTTPS, channel: channel}
}

func TestSubmissionUseCase_Evaluate(t *testing.T) {
	t.Run("main URL is cleaned", func(t *testing.T) {
		s := setupURLForm(t)
		ctx := context.Background()

		res, err := s.uc.Submission.Evaluate(ctx, alice, s.form.ID, map[string]string{
			string(s.url.ID):    "http://example.com//landing",
			string(s.source.ID): "Google",
		})
		gt.NoError(t, err).Required()
		gt.Value(t, res.MainValue).Equal("http://example.com/landing?utm_source=google&utm_medium=x")
		gt.Value(t, res.Main).NotNil().Required()
		gt.Bool(t, res.Main.IsError).False()
		gt.Array(t, res.Blocks).Length(1).Required()
		gt.Value(t, res.Blocks[0].Value).Equal("cpc")
		gt.Value(t, res.Blocks[0].Title).Equal(model.ResultBlockTitle(s.channel.ID))
		gt.Bool(t, res.Created).True()
	})

	t.Run("use_https forces https", func(t *testing.T) {
		s := setupURLForm(t)

		res, err := s.uc.Submission.Evaluate(context.Background(), alice, s.form.ID, map[string]string{
			string(s.url.ID):      "http://example.com/landing",
			string(s.source.ID):   "google",
			string(s.useHTTPS.ID): "on",
		})
		gt.NoError(t, err).Required()
		gt.Value(t, res.MainValue).Equal("https://example.com/landing?utm_source=google&utm_medium=x")
	})

	t.Run("invalid URL is marked, not rejected", func(t *testing.T) {
		s := setupURLForm(t)

		res, err := s.uc.Submission.Evaluate(context.Background(), alice, s.form.ID, map[string]string{
			string(s.url.ID): "not a url",
		})
		gt.NoError(t, err).Required()
		gt.Bool(t, strings.HasPrefix(res.MainValue, model.URLInvalidMarker)).True()
		gt.Bool(t, res.Main.IsError).True()
		gt.Array(t, res.Blocks).Length(0)
	})

	t.Run("identical submissions are stored once", func(t *testing.T) {
		s := setupURLForm(t)
		ctx := context.Background()
		values := map[string]string{
			string(s.url.ID):    "http://example.com",
			string(s.source.ID): "google",
		}

		first, err := s.uc.Submission.Evaluate(ctx, alice, s.form.ID, values)
		gt.NoError(t, err).Required()

		values["unknown"] = "ignored"
		second, err := s.uc.Submission.Evaluate(ctx, alice, s.form.ID, values)
		gt.NoError(t, err).Required()

		gt.Value(t, second.Hashcode).Equal(first.Hashcode)
		gt.Bool(t, first.Created).True()
		gt.Bool(t, second.Created).False()
		gt.Value(t, second.MainValue).Equal(first.MainValue)

		history, err := s.uc.Submission.History(ctx, alice, "", 0)
		gt.NoError(t, err).Required()
		gt.Array(t, history).Length(1)
	})

	t.Run("concurrent identical submissions", func(t *testing.T) {
		s := setupURLForm(t)
		ctx := context.Background()
		values := map[string]string{string(s.url.ID): "http://example.com"}

		var wg sync.WaitGroup
		var mu sync.Mutex
		hashcodes := map[types.Hashcode]bool{}
		created := 0
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := s.uc.Submission.Evaluate(ctx, alice, s.form.ID, values)
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				hashcodes[res.Hashcode] = true
				if res.Created {
					created++
				}
				mu.Unlock()
			}()
		}
		wg.Wait()
		gt.Number(t, len(hashcodes)).Equal(1)
		gt.Number(t, created).Equal(1)

		history, err := s.uc.Submission.History(ctx, alice, "", 0)
		gt.NoError(t, err).Required()
		gt.Array(t, history).Length(1)
	})

	t.Run("hashcode collision keeps the first result", func(t *testing.T) {
		s := setupURLForm(t)
		ctx := context.Background()

		seen := map[types.Hashcode]string{}
		var first, second string
		for i := range 1 << 20 {
			v := fmt.Sprintf("http://example.com/%d", i)
			h := model.ComputeHashcode(s.form.ID, alice, map[string]string{string(s.url.ID): v})
			if prev, ok := seen[h]; ok {
				first, second = prev, v
				break
			}
			seen[h] = v
		}
		gt.Value(t, second).NotEqual("").Required()

		res, err := s.uc.Submission.Evaluate(ctx, alice, s.form.ID, map[string]string{string(s.url.ID): first})
		gt.NoError(t, err).Required()

		_, err = s.uc.Submission.Evaluate(ctx, alice, s.form.ID, map[string]string{string(s.url.ID): second})
		gt.Bool(t, errors.Is(err, usecase.ErrEvaluationFailed)).True()

		parsed, err := s.uc.Submission.Parse(ctx, alice, res.Hashcode)
		gt.NoError(t, err).Required()
		gt.Value(t, parsed.Values).Equal(map[string]string{string(s.url.ID): first})
		gt.Value(t, parsed.Result).NotNil().Required()
		gt.Value(t, parsed.Result.MainValue).Equal(res.MainValue)
	})

	t.Run("form access is required", func(t *testing.T) {
		s := setupURLForm(t)
		ctx := context.Background()
		values := map[string]string{string(s.url.ID): "http://example.com"}

		_, err := s.uc.Submission.Evaluate(ctx, bob, s.form.ID, values)
		gt.Bool(t, errors.Is(err, usecase.ErrAccessDenied)).True()

		_, err = s.uc.Submission.Evaluate(ctx, alice, "missing", values)
		gt.Bool(t, errors.Is(err, usecase.ErrFormNotFound)).True()

		gt.NoError(t, s.uc.Form.GrantAccess(ctx, alice, s.form.ID, bob)).Required()
		own, err := s.uc.Submission.Evaluate(ctx, alice, s.form.ID, values)
		gt.NoError(t, err).Required()
		granted, err := s.uc.Submission.Evaluate(ctx, bob, s.form.ID, values)
		gt.NoError(t, err).Required()
		gt.Value(t, granted.Hashcode).NotEqual(own.Hashcode)
		gt.Value(t, granted.MainValue).Equal(own.MainValue)
	})
}

// fieldLookupFails rejects single field lookups so that only reads made
// through a transaction succeed
type fieldLookupFails struct {
	interfaces.Repository
}

func (r *fieldLookupFails) Field() interfaces.FieldRepository {
	return &failingFieldRepository{FieldRepository: r.Repository.Field()}
}

type failingFieldRepository struct {
	interfaces.FieldRepository
}

func (r *failingFieldRepository) GetByFullTitle(ctx context.Context, ft types.FullTitle) (*model.Field, error) {
	return nil, errors.New("field read outside of a transaction")
}

func TestSubmissionUseCase_EvaluateUsesSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	base := usecase.New(repo)

	url := mustCreateField(t, base, rawValue(inputField("url")))
	link := mustCreateField(t, base, rawValue(combinedField("link", "$it-url-alice", "landing")))
	form := mustCreateForm(t, base, newForm("landing", model.UIGrid{{"$it-url-alice"}}, link.FullTitle))

	uc := usecase.New(&fieldLookupFails{Repository: repo})
	res, err := uc.Submission.Evaluate(ctx, alice, form.ID, map[string]string{
		string(url.ID): "example",
	})
	gt.NoError(t, err).Required()
	gt.Value(t, res.MainValue).Equal("example_landing")
}

func TestSubmissionUseCase_Parse(t *testing.T) {
	s := setupURLForm(t)
	ctx := context.Background()
	values := map[string]string{
		string(s.url.ID):    "http://example.com",
		string(s.source.ID): "google",
	}
	res, err := s.uc.Submission.Evaluate(ctx, alice, s.form.ID, values)
	gt.NoError(t, err).Required()

	parsed, err := s.uc.Submission.Parse(ctx, alice, res.Hashcode)
	gt.NoError(t, err).Required()
	gt.Value(t, parsed.FormID).Equal(s.form.ID)
	gt.Value(t, parsed.Values).Equal(values)
	gt.Value(t, parsed.Result).NotNil().Required()
	gt.Value(t, parsed.Result.MainValue).Equal(res.MainValue)

	_, err = s.uc.Submission.Parse(ctx, bob, res.Hashcode)
	gt.Bool(t, errors.Is(err, usecase.ErrAccessDenied)).True()

	gt.NoError(t, s.uc.Form.GrantAccess(ctx, alice, s.form.ID, bob)).Required()
	_, err = s.uc.Submission.Parse(ctx, bob, res.Hashcode)
	gt.NoError(t, err).Required()

	_, err = s.uc.Submission.Parse(ctx, alice, "zzzzzzzz")
	gt.Bool(t, errors.Is(err, usecase.ErrSubmissionNotFound)).True()
}

func TestSubmissionUseCase_History(t *testing.T) {
	s := setupURLForm(t)
	ctx := context.Background()

	for _, src := range []string{"google", "yandex", "bing"} {
		_, err := s.uc.Submission.Evaluate(ctx, alice, s.form.ID, map[string]string{
			string(s.url.ID):    "http://example.com",
			string(s.source.ID): src,
		})
		gt.NoError(t, err).Required()
	}

	all, err := s.uc.Submission.History(ctx, alice, "", 0)
	gt.NoError(t, err).Required()
	gt.Array(t, all).Length(3)

	limited, err := s.uc.Submission.History(ctx, alice, "", 2)
	gt.NoError(t, err).Required()
	gt.Array(t, limited).Length(2)

	matched, err := s.uc.Submission.History(ctx, alice, "YANDEX", 0)
	gt.NoError(t, err).Required()
	gt.Array(t, matched).Length(1).Required()
	gt.Bool(t, strings.Contains(matched[0].MainValue, "utm_source=yandex")).True()

	others, err := s.uc.Submission.History(ctx, bob, "", 0)
	gt.NoError(t, err).Required()
	gt.Array(t, others).Length(0)
}
