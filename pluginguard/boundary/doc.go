// Package boundary provides per-plugin fault isolation for plugin hosts.
//
// A Boundary wraps calls into one independently loaded plugin: failures are
// contained, classified by severity, and escalated through a small health
// state machine (healthy, degraded, failed, disabled, recovering). Registered
// fallbacks let callers degrade gracefully, and a Watchdog polls boundaries on
// a fixed cadence to recover failed plugins automatically.
//
// Typical call site:
//
//	exec := b.Execute(ctx, "forecast", nil, func(ctx context.Context) (any, error) {
//	    return plugin.Forecast(ctx, city)
//	})
//
//	result := exec.Result()
//	if exec.NeedsFallback() {
//	    result, err = exec.ExecuteFallback(ctx)
//	}
package boundary
