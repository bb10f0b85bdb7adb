// Package textutil provides text processing utilities for safe filesystem
// naming.
//
// Library paths are assembled from metadata and source filenames that may
// carry characters various filesystems reject; SanitizeRelPath normalizes
// them while preserving directory structure and non-ASCII titles.
package textutil
