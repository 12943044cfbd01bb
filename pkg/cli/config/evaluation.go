package config

import (
	"github.com/secmon-lab/utmcraft/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// Evaluation holds flags tuning submission evaluation
type Evaluation struct {
	maxDepth int64
}

func (x *Evaluation) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "max-evaluation-depth",
			Category:    "Evaluation",
			Usage:       "Maximum nesting of result fields evaluated for one submission",
			Value:       usecase.DefaultMaxEvaluationDepth,
			Sources:     cli.EnvVars("UTMCRAFT_MAX_EVALUATION_DEPTH"),
			Destination: &x.maxDepth,
		},
	}
}

// Options returns use case options for the configured values
func (x *Evaluation) Options() []usecase.Option {
	if x.maxDepth <= 0 {
		return nil
	}
	return []usecase.Option{usecase.WithMaxEvaluationDepth(int(x.maxDepth))}
}
