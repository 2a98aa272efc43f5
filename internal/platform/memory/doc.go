// Package memory provides process-local implementations of the store
// interfaces. They back the "memory" database driver used for local runs and
// tests; nothing survives a restart.
package memory
