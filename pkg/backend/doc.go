/*
Package backend adapts the shared Redis deployment into the bridge's
encrypted, namespaced key-value store.

Every entity blob is AES-256-GCM encrypted before it is written; versions,
system stamps and public PEMs stay in the clear. Entity writes are
transactional pipelines (data + version + system stamp in one round) followed
by a best-effort pub/sub event and audit-stream append.

The adapter preserves the bridge's availability asymmetry: read paths treat a
down backend as absent-but-ok and log a warning, write paths surface
BACKEND_ERROR.
*/
package backend
