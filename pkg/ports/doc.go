// Package ports defines the interfaces between the ensemble core and its
// environment: the per-device byte channel the host establishes, the dialer
// that establishes it, and the store that persists user-authored actions.
// Adapters under pkg/adapters implement them.
package ports
