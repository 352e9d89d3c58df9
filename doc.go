// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
openid is a package for authenticating users with an OpenID 1.x identity
provider using the browser redirect flow.

Primary types provided by the package

* Consumer: drives the relying-party side of the protocol. It provides
the three operations a relying party needs: BeginAuth (discover the
user's provider and mint a bridge token), ConstructRedirect (build the
checkid URL the browser is sent to) and CompleteAuth (verify the
provider's signed callback).

* AuthRequest: the bridge state for one login attempt. The relying
party carries its Token across the redirect (session, cookie, or the
return_to URL) and hands it back to CompleteAuth.

* Association: a negotiated HMAC-SHA1 shared secret between the
consumer and one provider endpoint, established with a Diffie-Hellman
exchange and cached in the Store.

* Store: the pluggable persistence contract (auth key, associations,
single-use nonces). A concurrency-safe MemoryStore is included; durable
backends are supplied by the caller.

* Fetcher: the pluggable HTTP contract for discovery and the direct
provider exchanges.

* Result: the typed outcome of BeginAuth and CompleteAuth. The package
never panics and never surfaces transport or crypto errors to callers;
every negative outcome collapses to a Result status.
*/
package openid
