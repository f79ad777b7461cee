// Package infrastructure reconciles the networking around an instance:
// the network it attaches to, the ACLs on its NIC, the port forwards
// pointing at it and its pinned addresses.
//
// Everything here is called by the orchestrator or by teardown with a
// resolved provisioning.Target or instance handle. Nothing is retried;
// hypervisor errors are wrapped and returned.
package infrastructure
