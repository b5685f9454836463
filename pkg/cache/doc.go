/*
Package cache keeps the in-process view of services and workspaces.

Each entity type carries a global system stamp in the backend; reads compare
the cached stamp against it and reload the whole map under a per-type mutex
when they differ. Mutating paths additionally push their result straight into
the cache so the writer sees its own write immediately.
*/
package cache
