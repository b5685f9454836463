/*
Package token is the signing side of the bridge: a multi-key RSA ring with
kid-based rotation, an RS256 mint/verify authority, and the link-gated issuer
that binds every token to an existing (issuer, audience, workspace) trust
link at the moment of issuance.

Verification does not re-check the link; revocation is link removal plus TTL
expiry.
*/
package token
