/*
Package store is the entity layer: CRUD for services and workspaces, link
changes, and the cascading link cleanup that keeps the trust graph free of
dangling references when a service goes away.

Mutations share one concurrency protocol: a caller-supplied If-Match that
disagrees with the cached version fails with PRECONDITION_FAILED; a backing
blob whose version drifted from the cache fails with CONFLICT. Every
successful mutation stamps a fresh opaque version and pushes the result into
the cache.
*/
package store
