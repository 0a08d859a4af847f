// Package domain defines the core task entities shared across the
// subsystem: the task itself, its lifecycle, persisted snapshots and
// stored results. It has no infrastructure dependencies.
package domain
