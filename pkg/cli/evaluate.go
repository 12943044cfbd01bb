package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/cli/config"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
	"github.com/secmon-lab/utmcraft/pkg/usecase"
	"github.com/secmon-lab/utmcraft/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

func cmdEvaluate() *cli.Command {
	var user string
	var formID string
	var values []string
	var valuesFile string
	var repoCfg config.Repository
	var evalCfg config.Evaluation

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User submitting the form",
			Required:    true,
			Sources:     cli.EnvVars("UTMCRAFT_USER"),
			Destination: &user,
		},
		&cli.StringFlag{
			Name:        "form-id",
			Aliases:     []string{"f"},
			Usage:       "Form to submit",
			Required:    true,
			Destination: &formID,
		},
		&cli.StringSliceFlag{
			Name:        "value",
			Aliases:     []string{"v"},
			Usage:       "Submitted value as FIELD_ID=VALUE (repeatable)",
			Destination: &values,
		},
		&cli.StringFlag{
			Name:        "values-file",
			Usage:       "JSON object of submitted values keyed by field ID (- for stdin)",
			Destination: &valuesFile,
		},
	}
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, evalCfg.Flags()...)

	return &cli.Command{
		Name:    "evaluate",
		Aliases: []string{"e"},
		Usage:   "Submit form values and print the computed result as JSON",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			submitted, err := readSubmittedValues(values, valuesFile, os.Stdin)
			if err != nil {
				return err
			}

			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer safe.Close(ctx, repo)

			uc := usecase.New(repo, evalCfg.Options()...)
			result, err := uc.Submission.Evaluate(ctx, types.UserID(user), types.FormID(formID), submitted)
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(c.Root().Writer)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(result); err != nil {
				return goerr.Wrap(err, "failed to write result")
			}
			return nil
		},
	}
}

// readSubmittedValues merges the values file with FIELD_ID=VALUE pairs. Pairs
// win over the file.
func readSubmittedValues(pairs []string, path string, stdin io.Reader) (map[string]string, error) {
	values := make(map[string]string)

	if path != "" {
		var r io.Reader = stdin
		if path != "-" {
			// #nosec G304 - path is expected to be provided by CLI argument
			f, err := os.Open(path)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to open values file", goerr.V("path", path))
			}
			defer safe.Close(context.Background(), f)
			r = f
		}
		if err := json.NewDecoder(r).Decode(&values); err != nil {
			return nil, goerr.Wrap(err, "values file must be a JSON object of strings", goerr.V("path", path))
		}
	}

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, goerr.New("value must be FIELD_ID=VALUE", goerr.V("value", pair))
		}
		values[key] = value
	}
	return values, nil
}
