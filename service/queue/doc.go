// Package queue owns the population of workflow processor trees. It caches
// trees behind lightweight stubs, promotes newly eligible task leaves to a
// priority sorted runnable list and hands them out to a scheduler one at a
// time. All mutation of a tree happens under its per-instance lock.
package queue
