package manager

import "errors"

var (
	// ErrNoWorkers rejects construction of a manager with no server fleet.
	ErrNoWorkers = errors.New("cannot serve with no workers")
	// ErrWorkerExists rejects a duplicate ident across both registries.
	ErrWorkerExists = errors.New("worker already exists")
	// ErrTransientNotRestartable rejects the transient-without-restartable
	// flag combination at registration time.
	ErrTransientNotRestartable = errors.New("cannot create a transient worker that is not restartable")
	// ErrScale rejects scale targets below one worker.
	ErrScale = errors.New("cannot scale to zero workers")
	// ErrUnknownWorker is returned for restart or shutdown directives that
	// name a group no registry knows.
	ErrUnknownWorker = errors.New("unknown worker")
	// ErrServerKilled is the fatal condition raised after a group-wide kill.
	// It signals that the parent itself must exit; callers do not recover
	// from it.
	ErrServerKilled = errors.New("server killed")
)
