package report

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchConcurrency bounds parallel renders when none is configured.
const DefaultBatchConcurrency = 4

// Generator produces one report.
type Generator interface {
	Generate(ctx context.Context, sessionID string) (*Result, error)
}

// Outcome is the result of one session in a batch.
type Outcome struct {
	SessionID string `json:"session_id"`
	File      string `json:"file,omitempty"`
	Error     string `json:"error,omitempty"`
}

// OK reports whether the session's report was generated.
func (o Outcome) OK() bool { return o.Error == "" }

// BatchGenerator renders many reports with bounded concurrency. A failing
// session does not stop the others.
type BatchGenerator struct {
	gen         Generator
	concurrency int
	logger      zerolog.Logger
}

func NewBatchGenerator(gen Generator, concurrency int, logger zerolog.Logger) *BatchGenerator {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}
	return &BatchGenerator{
		gen:         gen,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "report-batch").Logger(),
	}
}

// Run generates a report per id. Outcomes are returned in input order. The
// error is non-nil only when ctx is cancelled; sessions not started by then
// carry the cancellation as their error.
func (b *BatchGenerator) Run(ctx context.Context, sessionIDs []string) ([]Outcome, error) {
	outcomes := make([]Outcome, len(sessionIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for i, id := range sessionIDs {
		i, id := i, id
		outcomes[i].SessionID = id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				outcomes[i].Error = err.Error()
				return nil
			}
			res, err := b.gen.Generate(gctx, id)
			if err != nil {
				b.logger.Error().Err(err).Str("session_id", id).Msg("report failed")
				outcomes[i].Error = err.Error()
				return nil
			}
			outcomes[i].File = res.File
			return nil
		})
	}

	_ = g.Wait()
	failed := 0
	for _, o := range outcomes {
		if !o.OK() {
			failed++
		}
	}
	b.logger.Info().Int("total", len(outcomes)).Int("failed", failed).Msg("batch finished")
	return outcomes, ctx.Err()
}
