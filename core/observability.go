package core

// ModelStats is a point-in-time snapshot of a ThreadModel.
type ModelStats struct {
	Kind       ThreadModelKind
	Foreground int
	Background int
	Disruptive int

	// LiveContexts counts dedicated threads currently running.
	// Only the thread-per-task model has any.
	LiveContexts int

	Broken bool
	Closed bool
}

// PoolStats represents runtime observability state for a thread pool.
type PoolStats struct {
	ID      string
	Workers int
	Queued  int
	Active  int
	Delayed int
	Running bool
}
