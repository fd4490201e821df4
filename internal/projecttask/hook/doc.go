// Package hook keeps ordered groups of run listeners and observers.
//
// The task manager owns one Manager for listeners registered on it
// directly and is handed another for extension listeners discovered at
// startup. Within a Manager, listeners run by descending priority; equal
// priorities keep registration order, so listeners registered without a
// priority run exactly in the order they were added.
package hook
