// Package s3 stores backup bundles in S3-compatible object storage.
//
// Bundles are uploaded as one object per file below a key prefix and are
// downloaded back into a local directory before a rollback. Locations are
// written as s3://bucket/prefix.
package s3
