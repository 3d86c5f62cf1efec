// Package cascade provides a workflow job queue that dispatches task leaves
// of hierarchical workflow trees to remote resource nodes.
//
// The engine is composed of pluggable service layers:
//
//   - queue      – workflow trees, promotion and runnable ordering
//   - dispatch   – at-most-once remote execution and kill
//   - scheduler  – worker pool feeding the dispatcher from the queue
//   - monitor    – per node load accounting
//   - transport  – remote node access (in-memory or shell over ssh)
//
// Cascade is designed to be embedded in host applications. End-users
// typically interact with the engine via the Service facade exposed by the
// root package:
//
//	srv, _ := cascade.New(cascade.WithConfig(cfg))
//	rt := srv.Runtime()
//	_ = rt.Start(ctx)
//	_ = rt.Enqueue(ctx, tree)
//	defer rt.Shutdown(ctx)
//
// Job status changes reported by nodes are mapped back onto the owning task,
// so a workflow advances as soon as its preceding tasks succeed.
package cascade
