// Package supervisor runs a set of proxy mappings alongside a set of
// commands and decides when the whole run is over.
//
// A run moves through Starting, Running, Draining and Done. Every listener
// gets one bind attempt before any command starts, and a mapping that can
// never bind aborts the run before the commands are launched. A listen
// endpoint that is only not ready yet, such as an interface still coming up,
// keeps retrying in the background while the commands run. In parallel mode the proxies stay up until every
// command has exited; in replace mode they stay up for the lifetime of the
// single command. An interrupt or a failed forwarder drains either way.
//
// The transition rules live in a small pure state machine (machine.go) fed
// by events from the forwarders, the command waiters and the caller's
// context. Only the goroutine in Run applies events.
package supervisor
