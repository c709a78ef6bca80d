package watchdog

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/kenobot/kenobot/internal/provider"
)

// ProviderCircuitCheck adapts a circuit breaker's status into a health
// check. It is registered as critical: an OPEN breaker means the daemon
// cannot talk to the language model at all.
func ProviderCircuitCheck(cb *provider.CircuitBreaker) CheckFunc {
	return func(ctx context.Context) CheckResult {
		status := cb.GetStatus()
		switch status.State {
		case provider.StateOpen:
			return CheckResult{Status: CheckFail, Detail: "circuit open"}
		case provider.StateHalfOpen:
			return CheckResult{Status: CheckWarn, Detail: "circuit half-open, probing recovery"}
		default:
			return CheckResult{Status: CheckOK}
		}
	}
}

// ProcessMemoryCheck reports warn/fail based on the current process's
// resident set size against the configured thresholds.
func ProcessMemoryCheck(warnMB, failMB int64) CheckFunc {
	pid := int32(os.Getpid())
	return func(ctx context.Context) CheckResult {
		proc, err := process.NewProcessWithContext(ctx, pid)
		if err != nil {
			return CheckResult{Status: CheckFail, Detail: "cannot read process info: " + err.Error()}
		}
		info, err := proc.MemoryInfoWithContext(ctx)
		if err != nil {
			return CheckResult{Status: CheckFail, Detail: "cannot read memory info: " + err.Error()}
		}
		rssMB := int64(info.RSS / (1024 * 1024))
		switch {
		case rssMB >= failMB:
			return CheckResult{Status: CheckFail, Detail: fmt.Sprintf("rss %dMB >= fail threshold %dMB", rssMB, failMB)}
		case rssMB >= warnMB:
			return CheckResult{Status: CheckWarn, Detail: fmt.Sprintf("rss %dMB >= warn threshold %dMB", rssMB, warnMB)}
		default:
			return CheckResult{Status: CheckOK}
		}
	}
}

// SleepCycleStatus is the minimal view of sleep-cycle state the
// staleness check needs, kept as an interface so this package does not
// import internal/sleepcycle directly.
type SleepCycleStatus interface {
	LastRun() time.Time
	Failed() bool
}

// SleepCycleStalenessCheck warns when the sleep cycle hasn't completed
// within staleAfter, and fails if its most recent run ended in failure.
func SleepCycleStalenessCheck(status SleepCycleStatus, staleAfter time.Duration) CheckFunc {
	return func(ctx context.Context) CheckResult {
		if status.Failed() {
			return CheckResult{Status: CheckFail, Detail: "last sleep cycle run failed"}
		}
		last := status.LastRun()
		if last.IsZero() {
			return CheckResult{Status: CheckWarn, Detail: "sleep cycle has never run"}
		}
		if age := time.Since(last); age > staleAfter {
			return CheckResult{Status: CheckWarn, Detail: fmt.Sprintf("last run %s ago exceeds %s", age.Round(time.Minute), staleAfter)}
		}
		return CheckResult{Status: CheckOK}
	}
}
