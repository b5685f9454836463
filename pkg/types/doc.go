/*
Package types defines the auth bridge data model: services, workspaces and
the directed trust links between them.

Services and workspaces share the Entity base (id, name, api_key, info,
content, version). A workspace carries an ordered list of ServiceLink values;
link identity is the (issuer_id, audience_id) pair, the context map is
payload. Entities are kept by id only, so the trust graph holds no cyclic
references and is materialized on demand by the discovery projector.
*/
package types
