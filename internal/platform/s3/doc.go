// Package s3 archives workload artifacts to an S3-compatible bucket.
//
// The client targets any S3 endpoint (MinIO, Ceph RGW, AWS) and uses
// path-style addressing when a custom endpoint is given. [Client.Archive]
// uploads a directory tree file by file and satisfies workload.Archiver.
package s3
