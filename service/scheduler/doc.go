// Package scheduler hosts the workers that move runnable tasks from the
// queue manager onto resource nodes. Every worker polls for the next task,
// records its job, picks the least loaded node and hands the job to the
// dispatcher; rejected dispatches go back to the runnable list.
package scheduler
