// Package session implements libra's in-process session registry.
//
// A Store maps opaque tokens to authenticated principals. Expiry is sliding:
// every successful Get resets the idle clock, and a session whose last access
// is older than the idle timeout is treated as absent and reclaimed lazily.
// Absence is never an error; only a failing random source is.
//
// The registry is process-local. There is no replication or shared state
// between processes.
package session
