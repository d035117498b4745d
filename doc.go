// Package stash moves data between a local working directory and remote
// durable storage behind one protocol-agnostic interface.
//
// A Provider is constructed once per session with a local sandbox directory
// and a raw output prefix naming the default remote write root. Backends are
// resolved lazily from path schemes (file, s3, abfs/abfss, ftp) and cached
// per credential mode, so a public-bucket fallback can hold an anonymous
// handle next to the authenticated one. Transfers retry throttling errors
// with jittered exponential backoff and surface missing objects as a typed
// not-found error distinct from transfer failures.
package stash
