// Package compute creates instances and waits for them to become usable.
//
// Provisioner.Deploy launches or clones one instance, recreating it when
// forced. Readiness blocks until an instance has its addresses, or until
// a guest command succeeds, polling at the configured interval.
package compute
