// Package orchestrator runs a simulation: it expands a user count into jobs,
// drives them through their phases under per-pool concurrency ceilings and
// collects every outcome into a [Tally].
//
// The bootstrap and emit collaborators are consumed through the narrow
// [Bootstrapper] and [Emitter] interfaces so runs can be exercised with
// in-memory stubs:
//
//	o := orchestrator.New(settings,
//		orchestrator.WithBootstrapper(browser),
//		orchestrator.WithEmitter(client),
//	)
//	tally, err := o.RunSimulation(ctx, orchestrator.Request{Users: 10, Mode: job.Hybrid})
//
// RunSimulation returns an error only when the request is rejected before any
// job is created. Job failures are data in the tally.
package orchestrator
