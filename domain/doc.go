// Package domain defines the core data structures of the jobcue client and the
// repository interfaces that persist them.
//
// It holds the QueuedRequest record that the request pipeline defers while the
// device is offline, the DeadLetter record written when the drainer gives up on
// an entry, and the contracts that storage backends (SQLite, Redis, Badger)
// implement. The package is independent of any storage technology.
package domain
