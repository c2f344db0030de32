package filesystem

// Observer receives timings and retry outcomes of the jail reads made
// through this package. The metrics package implements it; filesystem
// cannot import metrics without a cycle.
//
// volume is the label from the VolumeResolver: "media" for the jail root,
// "database" for the index directory, "unknown" otherwise. operation is
// "stat", "read" (opens) or "readdir". retryOp keeps "open" distinct.
type Observer interface {
	ObserveOperation(volume, operation string, durationSeconds float64, err error)

	ObserveRetryAttempt(retryOp, volume string)
	ObserveRetrySuccess(retryOp, volume string)
	ObserveRetryFailure(retryOp, volume string)
	ObserveRetryDuration(retryOp, volume string, durationSeconds float64)
	ObserveStaleError(retryOp, volume string)
}

var defaultObserver Observer

// SetObserver installs o for every later operation. Nil disables
// observation, which is the state tests start in.
func SetObserver(o Observer) {
	defaultObserver = o
}

func observe() Observer {
	return defaultObserver
}
