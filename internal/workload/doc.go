// Package workload hands a provisioned deployment to the external workload
// runner and cleans up what the runner leaves behind.
//
// [AnsibleRunner] runs ansible-runner against the deployment directory. Its
// run artifacts are removed afterwards by [Artifacts], optionally after
// uploading them through an [Archiver].
package workload
