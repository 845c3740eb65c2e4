/*
Package worker is the tenant worker runtime: a single-tenant subprocess that
owns one in-memory authorization graph and executes commands for it.

The worker exposes the acs.TenantWorker RPC service on a loopback port
assigned by the gateway. Incoming Execute calls are decoded against the
command catalog and funneled through the command buffer, so the graph sees
exactly one command at a time and needs no locks. All sensitive attribute
values pass through the tenant's encryption engine before they reach the
graph and after they leave it.

The worker never answers Execute with a transport error for a command
failure: every domain outcome, success or failure, travels inside the
CommandResult so the gateway can map it back onto an HTTP status.
*/
package worker
