// Package scheduling implements the appointment-availability engine:
// enumerating bookable slots from recurring weekly rules and date
// exceptions, checking candidate instants for conflicts, and managing the
// appointment lifecycle.
//
// Every operation is a synchronous computation over the shared store with
// no in-process locking. The create and update paths are check-then-act:
// two concurrent requests can both pass the conflict check for the same
// free slot and both persist. Callers needing a hard guarantee should add
// a uniqueness constraint on (owner_id, scheduled_at) in the store.
package scheduling
