package entitlement

import (
	"context"
	"log/slog"

	"github.com/foxseedlab/mentorpack/internal/notify"
	"github.com/foxseedlab/mentorpack/internal/workflow"
)

// emitFact hands a fact to the sink as a retried step. Emission is
// fire-and-forget: a final failure is logged and does not fail the workflow.
func emitFact(ctx context.Context, runner *workflow.Runner, sink notify.Sink, workflowName string, fact notify.Fact) {
	err := workflow.Exec(ctx, runner, workflowName, "emit_"+string(fact.Type), func(ctx context.Context) error {
		return sink.Send(ctx, fact)
	})
	if err != nil {
		slog.Error("failed to emit fact", "workflow", workflowName, "type", fact.Type, "dedupe_key", fact.DedupeKey, "error", err)
	}
}
