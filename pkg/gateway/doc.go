/*
Package gateway is the HTTP edge of the access control system.

Every request passes the same middleware chain: correlation (read or mint
the correlation headers), rate limiting, authentication, then metrics. The
command endpoint resolves the tenant, authorizes the caller against it, and
hands the decoded command to the dispatcher, which owns the RPC hop to the
tenant's worker.

The gateway also hosts the management surface: tenant catalog CRUD, worker
inspection and shutdown, key rotation and backup, and token issuing.

Errors leave the gateway as a uniform JSON body:

	{"error": "<kind>", "message": "...", "correlationId": "..."}

with the HTTP status derived from the error's kind.
*/
package gateway
