/*
Package api is the HTTP surface of the bridge: provisioning endpoints for
services, workspaces and links, the token issue/verify endpoints, key
distribution (JWKS, public key), and system operations.

Wire format is JSON. Callers authenticate with the x-api-key header;
mutating endpoints accept an If-Match header for optimistic concurrency.
Errors render as {error_code, message, [retry_after_sec]}.
*/
package api
