// Package destroy handles instance teardown and the cleanup of what the
// instance leaves behind.
//
// Teardown removes the port mappings targeting the instance, pauses,
// stops and deletes it, and finally deletes the ACLs that only this
// instance used. Pause and stop tolerate an instance that is already
// stopped; every other hypervisor error aborts the teardown.
package destroy
