package cli

import (
	"context"
	"net/http"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/cli/config"
	httpctrl "github.com/secmon-lab/utmcraft/pkg/controller/http"
	"github.com/secmon-lab/utmcraft/pkg/usecase"
	"github.com/secmon-lab/utmcraft/pkg/utils/logging"
	"github.com/secmon-lab/utmcraft/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var addr string
	var userHeader string
	var maxBodySize int64
	var repoCfg config.Repository
	var evalCfg config.Evaluation

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("UTMCRAFT_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "user-header",
			Usage:       "Request header carrying the caller identity set by the front proxy",
			Value:       httpctrl.DefaultUserHeader,
			Sources:     cli.EnvVars("UTMCRAFT_USER_HEADER"),
			Destination: &userHeader,
		},
		&cli.Int64Flag{
			Name:        "max-body-size",
			Usage:       "Maximum request body size in bytes",
			Value:       1 << 20,
			Sources:     cli.EnvVars("UTMCRAFT_MAX_BODY_SIZE"),
			Destination: &maxBodySize,
		},
	}

	// Add shared config flags
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, evalCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer safe.Close(ctx, repo)

			uc := usecase.New(repo, evalCfg.Options()...)

			httpHandler := httpctrl.New(uc,
				httpctrl.WithUserHeader(userHeader),
				httpctrl.WithMaxBodySize(maxBodySize),
			)
			server := &http.Server{
				Addr:              addr,
				Handler:           httpHandler,
				ReadHeaderTimeout: 30 * time.Second,
			}

			logging.Default().Info("Starting HTTP server",
				"addr", addr,
				"user_header", userHeader,
				"max_body_size", maxBodySize,
				"repository", repoCfg,
			)
			return runServer(ctx, server, 10*time.Second)
		},
	}
}

// runServer serves until ctx is canceled or SIGINT/SIGTERM arrives, then
// drains in-flight requests for at most grace
func runServer(ctx context.Context, server *http.Server, grace time.Duration) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- goerr.Wrap(err, "failed to start server", goerr.V("addr", server.Addr))
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logging.Default().Info("Shutting down HTTP server", "cause", context.Cause(ctx))
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return goerr.Wrap(err, "failed to shutdown server gracefully")
	}
	logging.Default().Info("Server shutdown completed")
	return nil
}
