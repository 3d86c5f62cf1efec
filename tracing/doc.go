// Package tracing wraps OpenTelemetry so that dispatch proxies and the
// promotion loop can emit spans without importing the upstream packages
// directly. Until Init or InitWithExporter is called every span is a no-op.
package tracing
