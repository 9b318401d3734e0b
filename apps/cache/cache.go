// Copyright (c) Openident.
// Licensed under the MIT license.

/*
Package cache allows third parties to implement external storage for caching
token data for distributed systems or multiple local applications access.

The data stored and extracted will represent the entire cache. Therefore it is
recommended one client instance per user. This data is considered opaque and
there are no guarantees to implementers on the format being passed.
*/
package cache

import "context"

// Marshaler marshals data from an internal cache to bytes that can be stored.
type Marshaler interface {
	Marshal() ([]byte, error)
}

// Unmarshaler unmarshals data from a storage medium into the internal cache,
// overwriting it.
type Unmarshaler interface {
	Unmarshal([]byte) error
}

// Serializer can serialize the cache to binary or from binary into the cache.
type Serializer interface {
	Marshaler
	Unmarshaler
}

// ExportHints provide suggestions to the cache accessor about what is being
// stored. PartitionKey can be used to partition the cache per identity.
type ExportHints struct {
	// PartitionKey is a suggested key for partitioning the cache.
	PartitionKey string
}

// ReplaceHints mirror ExportHints for reads.
type ReplaceHints struct {
	// PartitionKey is a suggested key for partitioning the cache.
	PartitionKey string
}

// ExportReplace is implemented by external storage plugins. Implementations
// are selected at client construction; the library never type-switches on the
// backing medium. Implementations should honor context cancellation and
// return context.Canceled or context.DeadlineExceeded in those cases.
type ExportReplace interface {
	// Replace replaces the cache with what is in external storage. Implementations
	// should call Unmarshal on the cache with the stored bytes.
	Replace(ctx context.Context, cache Unmarshaler, hints ReplaceHints) error

	// Export writes the binary representation of the cache (cache.Marshal()) to
	// external storage. This is considered opaque.
	Export(ctx context.Context, cache Marshaler, hints ExportHints) error
}
