// Package command starts the user's commands and reports how they ended.
//
// A [Runner] turns a [Command] into a running child process and returns a
// [Handle]. Start never fails: a command that cannot be spawned yields a
// Handle whose [Outcome] is already SpawnFailed, so callers have one path
// for every command. Terminate asks a child to stop gracefully; Kill does
// not ask.
//
// By default children inherit the parent's standard streams. In buffered
// mode each child's stdout and stderr are collected a line at a time and
// written whole to shared writers, so output of parallel commands never
// interleaves mid-line. With a [Broadcaster], everything read from the
// parent's stdin is copied to every shell command.
package command
