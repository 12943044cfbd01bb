package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/cli/config"
	"github.com/secmon-lab/utmcraft/pkg/domain/types"
	"github.com/secmon-lab/utmcraft/pkg/usecase"
	"github.com/secmon-lab/utmcraft/pkg/utils/logging"
	"github.com/secmon-lab/utmcraft/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

const gcsScheme = "gs://"

func cmdExport() *cli.Command {
	var users []string
	var output string
	var query string
	var repoCfg config.Repository

	flags := []cli.Flag{
		&cli.StringSliceFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "Export computed results of the user (repeatable)",
			Required:    true,
			Destination: &users,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "Destination: file path, - for stdout, or gs://bucket/object",
			Value:       "-",
			Sources:     cli.EnvVars("UTMCRAFT_EXPORT_OUTPUT"),
			Destination: &output,
		},
		&cli.StringFlag{
			Name:        "query",
			Aliases:     []string{"q"},
			Usage:       "Only export results whose hashcode, main value or block values contain the query",
			Destination: &query,
		},
	}
	flags = append(flags, repoCfg.Flags()...)

	return &cli.Command{
		Name:  "export",
		Usage: "Write computed results as JSON lines",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer safe.Close(ctx, repo)

			w, closeOutput, err := openOutput(ctx, output, c.Root().Writer)
			if err != nil {
				return err
			}

			n, err := exportResults(ctx, usecase.New(repo), users, query, w)
			if err != nil {
				// Leave a partial GCS object unfinalized
				if cancel, ok := w.(interface{ cancel() }); ok {
					cancel.cancel()
				}
				_ = closeOutput()
				return err
			}
			if err := closeOutput(); err != nil {
				return err
			}

			logging.Default().Info("Computed results exported", "output", output, "count", n)
			return nil
		},
	}
}

// exportResults writes one JSON object per line and returns the number written
func exportResults(ctx context.Context, uc *usecase.UseCases, users []string, query string, w io.Writer) (int, error) {
	encoder := json.NewEncoder(w)
	count := 0
	for _, user := range users {
		results, err := uc.Submission.History(ctx, types.UserID(user), query, 0)
		if err != nil {
			return count, err
		}
		for _, r := range results {
			if err := encoder.Encode(r); err != nil {
				return count, goerr.Wrap(err, "failed to write computed result", goerr.V("hashcode", r.Hashcode))
			}
			count++
		}
	}
	return count, nil
}

// gcsWriter lets the export abort an upload on failure
type gcsWriter struct {
	*storage.Writer
	cancelFn context.CancelFunc
}

func (w *gcsWriter) cancel() {
	w.cancelFn()
}

// openOutput resolves the destination. The returned function finalizes it.
func openOutput(ctx context.Context, output string, stdout io.Writer) (io.Writer, func() error, error) {
	switch {
	case output == "-" || output == "":
		return stdout, func() error { return nil }, nil

	case strings.HasPrefix(output, gcsScheme):
		bucket, object, ok := strings.Cut(strings.TrimPrefix(output, gcsScheme), "/")
		if !ok || bucket == "" || object == "" {
			return nil, nil, goerr.New("GCS output must be gs://bucket/object", goerr.V("output", output))
		}

		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create storage client")
		}

		uploadCtx, cancel := context.WithCancel(ctx)
		ow := client.Bucket(bucket).Object(object).NewWriter(uploadCtx)
		ow.ContentType = "application/x-ndjson"

		w := &gcsWriter{Writer: ow, cancelFn: cancel}
		return w, func() error {
			defer cancel()
			defer safe.Close(ctx, client)
			if err := ow.Close(); err != nil {
				return goerr.Wrap(err, "failed to upload export", goerr.V("bucket", bucket), goerr.V("object", object))
			}
			return nil
		}, nil

	default:
		// #nosec G304 - path is expected to be provided by CLI argument
		f, err := os.Create(output)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create output file", goerr.V("path", output))
		}
		return f, func() error {
			if err := f.Close(); err != nil {
				return goerr.Wrap(err, "failed to close output file", goerr.V("path", output))
			}
			return nil
		}, nil
	}
}
