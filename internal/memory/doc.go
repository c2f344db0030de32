// Package memory sizes the Go heap for containers and applies backpressure
// to image decoding.
//
// [ConfigureFromEnv] sets GOMEMLIMIT from MEMORY_LIMIT (bytes or a
// quantity such as 2Gi) scaled by MEMORY_RATIO, unless GOMEMLIMIT is
// already set.
//
// A [Monitor] samples heap usage against that limit. Above the pause ratio
// thumbnail generation waits in [Monitor.WaitIfPaused] until usage drops
// below the resume ratio, so a rebuild over a large library does not
// decode images faster than memory allows.
//
//	memory.ConfigureFromEnv()
//	mon := memory.NewMonitor(memory.DefaultConfig())
//	mon.Start()
//	defer mon.Stop()
//	cfg.Throttle = mon
package memory
