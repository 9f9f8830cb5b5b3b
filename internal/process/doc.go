// Package process runs the external commands of a job run: the toolchain
// check, the dependency installer and the generator.
//
// Commands run in their own process group so cancelling the run context
// kills the whole tree, including anything the generator spawned.
package process
