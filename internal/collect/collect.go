// Package collect implements the per-source metric collectors. Each
// client turns one artist into a tagged fetch outcome: observations on
// success, a throttle signal when the source wants the run to back
// off, or a permanent per-artist failure.
package collect

import (
	"context"

	"github.com/signalindex/signalindex/internal/source"
)

// Collector is what the pipeline needs from a source client.
type Collector interface {
	// Fetch collects one artist's metrics from the source.
	Fetch(ctx context.Context, artist source.Artist) source.Outcome
	// Configured reports whether the client has the credentials it
	// needs. Unconfigured sources are skipped, not failed.
	Configured() bool
}
