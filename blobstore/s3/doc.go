// Package s3 provides an Amazon S3 backed blobstore.BlobStore for cache
// archives, plus an optional DynamoDB pointer store that tracks which
// archive is the latest so fresh containers can restore it without
// listing the bucket.
package s3
