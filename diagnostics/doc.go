// Package diagnostics provides chain observers that log and trace intercepted
// calls. Observers never change results or errors.
package diagnostics
