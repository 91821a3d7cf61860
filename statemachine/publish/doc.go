// Package publish provides statemachine.Publisher implementations that
// forward committed changes out of a machine: an in-process channel and a
// Redis stream.
package publish
