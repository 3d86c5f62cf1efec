// Package idgen wraps the UUID generator used for job identifiers so that it
// can be stubbed in tests. Callers must treat identifiers as opaque strings.
package idgen
