// Package config defines the desired-state model of a deployment.
//
// A [Deployment] is an ordered list of [Instance] specs decoded from a
// deployment directory's config.yml. Each instance carries exactly one
// provisioning [Source] ([*LaunchSource] or [*CopySource]) and an optional
// [Network] describing how its NIC is wired: ACLs, port forwards and static
// addresses. Values returned by [Load] are validated and must be treated as
// immutable by callers.
//
// The package also resolves the on-disk layout of a deployment directory
// ([ResolveLayout]) and the runtime tuning knobs read from the environment
// ([LoadTimeouts]).
package config
