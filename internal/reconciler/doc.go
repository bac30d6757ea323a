// Package reconciler keeps persisted device reachability in step with the
// network.
//
// A sweep ([Reconciler.RunSweep]) reads a snapshot of every device, probes
// each address, writes back statuses that changed and publishes one
// [inventory.StatusChangeEvent] per successful write. Devices whose probe
// cannot be carried out keep their stored status for that sweep. Repeated
// sweeps over unchanged reachability write and publish nothing.
//
// [Scheduler] drives RunSweep on a fixed interval. The Reconciler itself
// owns no timer so it can be exercised directly in tests.
package reconciler
