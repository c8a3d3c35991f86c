// Package domain holds the core types shared across the ensemble engine:
// user-authored actions and their instructions, remotely declared
// capabilities, run state, dispatch outcomes, and the error taxonomy.
// It has no dependencies on transports, stores, or adapters.
package domain
