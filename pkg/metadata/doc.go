// Package metadata computes the per-file values templates can reference:
// `stat`, `match`, `ext`, `exif` and `probe`. Each is derived lazily the
// first time a template names it.
package metadata
