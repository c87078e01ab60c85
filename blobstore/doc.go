// Package blobstore abstracts object storage for cache-file archives.
//
// A store's record log can be archived to a BlobStore on close and
// restored from it before the next open, so short-lived execution
// contexts (new serverless containers, fresh CI runners) reuse a cache
// that another instance already paid to fill.
//
// Backends:
//   - LocalStore: a directory on the local file system (mmap reads)
//   - MemoryStore: in-memory, for tests
//   - s3.Store: Amazon S3, optionally with a DynamoDB latest-pointer
//   - minio.Store: MinIO and other S3-compatible services
package blobstore
