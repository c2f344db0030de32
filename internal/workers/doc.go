/*
Package workers sizes the goroutine pools used for thumbnail regeneration
and index rebuilds.

Counts derive from runtime.GOMAXPROCS, which tracks container CPU limits,
scaled by the kind of Load:

	g.SetLimit(workers.ForCPU(8))   // resize images
	g.SetLimit(workers.ForMixed(8)) // regenerate a directory of thumbnails

Operators pin the count with MEDIA_WORKERS, which startup passes to
SetOverride. The override is still capped by each caller's limit.
*/
package workers
