// Package objectstore uploads finished images to durable object storage.
//
// Two backends implement Store. The http backend speaks to a storage worker
// that accepts PUT {base_url}/{key} and answers with JSON {url, filename}.
// The s3 backend writes to an S3-compatible bucket through the AWS SDK and
// derives public URLs from storage.public_base_url.
//
// Both backends run the shared Boundary check before any network I/O, make a
// single attempt bounded by storage.timeout_seconds, and translate failures
// into registry codes: timeouts, unreachable stores, rejections and
// undecodable responses are all distinct. Progress is reported through a
// counting reader so callers see monotonic byte counts.
package objectstore
