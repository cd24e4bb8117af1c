// Package cli provides shared helpers for the ganymede command line:
// typed errors that carry enough context for useful exit messages, and
// signal handling for graceful shutdown.
package cli
