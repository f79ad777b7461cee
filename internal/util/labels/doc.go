// Package labels builds the user.* config keys stamped on instances.
//
// Incus keeps any key under user.* verbatim, so the keys record which
// deployment and run created an instance without affecting its behavior.
package labels
