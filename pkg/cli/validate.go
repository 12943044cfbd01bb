package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/cli/config"
	"github.com/secmon-lab/utmcraft/pkg/domain/model"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
	"github.com/secmon-lab/utmcraft/pkg/usecase"
	"github.com/secmon-lab/utmcraft/pkg/utils/logging"
	"github.com/secmon-lab/utmcraft/pkg/utils/safe"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidDefinitions is returned when any checked form has problems
var ErrInvalidDefinitions = goerr.New("invalid definitions found")

func cmdValidate() *cli.Command {
	var users []string
	var definition string
	var concurrency int64
	var repoCfg config.Repository

	flags := []cli.Flag{
		&cli.StringSliceFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "Check stored forms owned by the user (repeatable)",
			Destination: &users,
		},
		&cli.StringFlag{
			Name:        "definition",
			Aliases:     []string{"d"},
			Usage:       "Check a TOML or YAML definition file without storing it",
			Destination: &definition,
		},
		&cli.Int64Flag{
			Name:        "concurrency",
			Usage:       "Number of forms checked in parallel",
			Value:       8,
			Destination: &concurrency,
		},
	}
	flags = append(flags, repoCfg.Flags()...)

	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Check a definition file and stored forms against the current field graph",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()
			w := c.Root().Writer

			if definition == "" && len(users) == 0 {
				return goerr.New("--definition or --user is required")
			}

			if definition != "" {
				def, err := config.LoadDefinition(definition)
				if err != nil {
					return goerr.Wrap(err, "definition file validation failed")
				}
				// Ordering needs resolvable references inside the file
				if _, err := def.SortedFields("validate"); err != nil {
					return goerr.Wrap(err, "definition file validation failed")
				}
				logger.Info("Definition file validation passed",
					"path", definition,
					"fields", len(def.Fields),
					"dependencies", len(def.Dependencies),
					"forms", len(def.Forms),
				)
			}

			if len(users) == 0 {
				return nil
			}

			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer safe.Close(ctx, repo)

			uc := usecase.New(repo)
			results, err := validateForms(ctx, uc, users, int(concurrency))
			if err != nil {
				return err
			}

			if n := printValidation(w, results); n > 0 {
				return goerr.Wrap(ErrInvalidDefinitions, fmt.Sprintf("%d form(s) have problems", n))
			}
			return nil
		},
	}
}

type formValidation struct {
	Form   *model.Form
	Errors model.ValidationErrors
}

// validateForms re-runs save validation for every form owned by users
func validateForms(ctx context.Context, uc *usecase.UseCases, users []string, concurrency int) ([]formValidation, error) {
	var forms []*model.Form
	for _, user := range users {
		list, err := uc.Form.ListForms(ctx, types.UserID(user))
		if err != nil {
			return nil, err
		}
		for _, f := range list {
			if f.Owner == types.UserID(user) {
				forms = append(forms, f)
			}
		}
	}

	results := make([]formValidation, len(forms))
	eg, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		eg.SetLimit(concurrency)
	}
	for i, form := range forms {
		eg.Go(func() error {
			errs, err := uc.Form.ValidateForm(ctx, form.Owner, form)
			if err != nil {
				return goerr.Wrap(err, "failed to validate form", goerr.V("form_id", form.ID))
			}
			results[i] = formValidation{Form: form, Errors: errs}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Form.FullTitle < results[j].Form.FullTitle
	})
	return results, nil
}

// printValidation writes a report and returns the number of invalid forms
func printValidation(w io.Writer, results []formValidation) int {
	ok := color.New(color.FgGreen).SprintFunc()
	ng := color.New(color.FgRed, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	invalid := 0
	for _, r := range results {
		if len(r.Errors) == 0 {
			_, _ = fmt.Fprintf(w, "%s %s %s\n", ok("✔"), r.Form.FullTitle, dim(r.Form.ID))
			continue
		}
		invalid++
		_, _ = fmt.Fprintf(w, "%s %s %s\n", ng("✘"), r.Form.FullTitle, dim(r.Form.ID))
		for _, e := range r.Errors {
			_, _ = fmt.Fprintf(w, "    %s\n", e.Error())
		}
	}
	_, _ = fmt.Fprintf(w, "%d form(s) checked, %d invalid\n", len(results), invalid)
	return invalid
}
