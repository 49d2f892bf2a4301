/*
Package types holds the small set of values shared by every cloudpath layer.

# Architecture Overview

Every operation flows top to bottom:

	┌─────────────────────────────────────────────┐
	│         cloudpath.Path / FileSystem         │
	│              (pkg/cloudpath)                │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│              Dynamic Accessor               │
	│            (internal/accessor)              │
	└─────────────────────────────────────────────┘
	          │                         │
	┌─────────┴─────────┐   ┌───────────┴──────────┐
	│   local driver    │   │     Bundle Cache     │
	│ (backend/local)   │   │  (internal/bundle)   │
	└───────────────────┘   └──────────────────────┘
	                          │        │        │
	                   ┌──────┴──┐ ┌───┴───┐ ┌──┴──────┐
	                   │   s3    │ │ minio │ │ memory  │
	                   └─────────┘ └───────┘ └─────────┘

Reads and writes additionally consult the Adaptive Chunk Policy (internal/chunk), which picks
plain streaming, the Concurrent Chunk Engine or the provider Transfer Manager. Object-store
writes are owned by the multipart state machine (internal/multipart).

# Core Types

FileInfo is the driver-neutral description of a file or object. Target is implemented by
anything addressable by URI. Range and SplitRanges describe byte ranges for ranged reads.
*/
package types
