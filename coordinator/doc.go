// Package coordinator implements the collaboration lifecycle of the MPC
// coordination service.
//
// A collaboration waits for a fixed number of input parties. Each party
// registers, uploads its masked inputs to the providers and confirms the
// upload with the resulting secret ids. Confirmation schedules a quorum
// evaluation on a worker pool; once enough uploads exist the first worker to
// insert the result marker runs the program on the ComputationEngine, stores
// the outcome and notifies output parties.
//
//	Open -> AwaitingQuorum -> Executing -> Finished(success|failure)
//
// Only the result marker is persisted as state; the earlier states are derived
// from the participations.
//
// Persistence goes through Store. InMemoryStore serves tests and single-node
// setups, PostgresStore is the durable implementation.
package coordinator
