// Package orchestration sequences a deployment run across its instances.
//
// The Orchestrator delegates the actual work to the provisioners in the
// internal/provisioning subpackages and owns the rollback decision after
// the workload step.
//
// # Workflow
//
// Deploy runs the following phases in order, each across every instance
// before the next phase starts:
//  1. Scope - Resolve remote and project per instance
//  2. Network - Reconcile the declared networks
//  3. Instance - Create (or, in apply mode, fetch) each instance
//  4. Readiness - Wait for addresses, and for boot on virtual machines
//  5. Workload - Run the playbook; on failure discard artifacts and tear down
//  6. Finalize - Pin addresses, restart, attach ACLs and add forwards
//  7. Test - Tear everything down again (test mode only)
//
// # Usage
//
//	orch := orchestration.New(connector, workload.NewAnsibleRunner(""),
//	    orchestration.WithObserver(observer))
//	report, err := orch.Deploy(ctx, layout, deployment, orchestration.Options{Force: true})
//
// Purge tears down a single instance by name, without a deployment file.
package orchestration
