// ABOUTME: Package doc for script and message distribution.
// ABOUTME: Notes the chunked single-target path versus the one-shot broadcast path.

// Package distribute pushes operator messages and script files to connected
// agents. Single-target script delivery encodes the file and sends it as
// ordered fixed-size chunks; broadcast delivery sends the whole encoded
// script in one envelope per agent. Delivery is best effort: stale
// connections are evicted from the registry and reported per target, never
// as a failure of the whole operation.
package distribute
