// Package dispatch assigns tasks to runners.
//
// A Registry holds the runners in registration order. SelectRunners
// probes them for every task of a wave: the first runner whose CanRun
// reports true claims the task, and tasks nobody claims go to the
// DummyRunner, which completes them successfully without doing anything.
package dispatch
