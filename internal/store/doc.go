// Package store defines the persistence interfaces the orchestrator depends
// on: the mirror record store it owns, and the read-only profile and job
// stores of the surrounding product.
package store
