// Package subprocess spawns and supervises a single tool-provider process.
//
// A Process owns the child's standard streams: stdin is handed to the protocol
// transport for writing, stdout for reading, and stderr is scanned line by line
// for logging and error reports. Done and Err report how and when the process
// terminated, distinguishing an intentional Kill from an unexpected exit.
package subprocess
