// Package checksum computes MD5 and SHA-512 digests of deliverable files
// and writes verification sidecars next to them.
//
// Design:
//   - Discovery is a single recursive walk; selection is by name.
//   - Hashing, sidecar writing and sidecar sanity checks are three fan-outs,
//     each one waiting for the complete result set of the previous one.
//   - Sidecars are written at most once: an existing sidecar is left alone.
//
// Sidecars use the two-space format understood by md5sum -c and sha512sum -c.
package checksum
