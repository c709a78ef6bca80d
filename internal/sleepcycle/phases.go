package sleepcycle

import (
	"context"
	"time"

	"github.com/kenobot/kenobot/internal/bus"
	"github.com/kenobot/kenobot/internal/conversation"
)

// consolidateThreshold is the message count at or above which a conversation is
// considered for consolidation.
const consolidateThreshold = 20

// pruneAfter is how long a conversation can go without an update before
// the pruning phase removes it.
const pruneAfter = 30 * 24 * time.Hour

// errorWindow bounds how far back the error-analysis phase looks on the
// audit trail.
const errorWindow = 24 * time.Hour

// DefaultPhases builds the four standard sleep-cycle phases, adapted from
// the donor's memory-package idiom: consolidation and pruning walk the
// conversation store, error analysis walks the bus audit trail, and
// self-improvement reports on the store's overall shape. audit may be nil
// (audit trail disabled), in which case error analysis always reports 0.
func DefaultPhases(store *conversation.Store, audit *bus.AuditTrail) []Phase {
	return []Phase{
		{Name: "consolidation", Run: consolidationPhase(store)},
		{Name: "errorAnalysis", Run: errorAnalysisPhase(audit)},
		{Name: "pruning", Run: pruningPhase(store)},
		{Name: "selfImprovement", Run: selfImprovementPhase(store)},
	}
}

// consolidationPhase counts conversations long enough to warrant
// consolidating their history, mirroring the donor's summarize-when-long
// heuristic. It does not mutate the store; the actual summarization
// content is out of scope.
func consolidationPhase(store *conversation.Store) func(context.Context) (Counters, error) {
	return func(ctx context.Context) (Counters, error) {
		convs, err := store.List()
		if err != nil {
			return nil, err
		}
		candidates, totalMessages := 0, 0
		for _, c := range convs {
			if c.MessageCount >= consolidateThreshold {
				candidates++
				totalMessages += c.MessageCount
			}
		}
		return Counters{
			"conversationsEligible": candidates,
			"messagesInEligible":    totalMessages,
		}, nil
	}
}

// errorAnalysisPhase tallies ERROR signals observed on the bus within the
// trailing errorWindow.
func errorAnalysisPhase(audit *bus.AuditTrail) func(context.Context) (Counters, error) {
	return func(ctx context.Context) (Counters, error) {
		if audit == nil {
			return Counters{"errorsObserved": 0}, nil
		}
		n, err := audit.CountSince(bus.TypeError, time.Now().Add(-errorWindow))
		if err != nil {
			return nil, err
		}
		return Counters{"errorsObserved": n}, nil
	}
}

// pruningPhase removes conversations that have gone untouched for longer
// than pruneAfter, matching the donor's archive-then-discard pattern for
// stale working memory.
func pruningPhase(store *conversation.Store) func(context.Context) (Counters, error) {
	return func(ctx context.Context) (Counters, error) {
		convs, err := store.List()
		if err != nil {
			return nil, err
		}
		cutoff := time.Now().Add(-pruneAfter)
		pruned := 0
		for _, c := range convs {
			if c.UpdatedAt.Before(cutoff) {
				if err := store.Delete(c.ID); err != nil {
					return nil, err
				}
				pruned++
			}
		}
		return Counters{"conversationsPruned": pruned}, nil
	}
}

// selfImprovementPhase reports the resulting shape of the store after
// consolidation and pruning ran; what "self-improvement" actually
// proposes is out of scope, so this phase's counters are descriptive.
func selfImprovementPhase(store *conversation.Store) func(context.Context) (Counters, error) {
	return func(ctx context.Context) (Counters, error) {
		convs, err := store.List()
		if err != nil {
			return nil, err
		}
		return Counters{"conversationsRemaining": len(convs)}, nil
	}
}
