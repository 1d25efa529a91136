// Package contact holds the live table of tracked vessels.
//
// A Store owns three pieces of shared state:
//
//   - the contact table, keyed by vessel id, updated by Merge and aged out by Purge
//   - the label cache, which remembers vessel names and dimensions across
//     restarts and is never pruned when a contact is purged
//   - the own-ship record, written by own position and heading sentences and
//     read by bearing/range merges
//
// The contact table and label cache share one mutex. The own-ship record has
// its own lock so position sentences never wait on contact merges.
//
// Snapshot, Get and every Sink push hand out copies; the live table is never
// exposed.
package contact
