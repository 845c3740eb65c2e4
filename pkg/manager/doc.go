/*
Package manager owns the lifecycle of per-tenant worker processes.

Each tenant gets exactly one worker: a subprocess of the gateway running the
same binary with the "worker" subcommand, listening for RPC on a port leased
from the manager's port pool. The manager starts workers lazily on first
dispatch, watches for unexpected exits, and restarts a worker the next time
a command arrives for its tenant.

Lifecycle:

	GetOrStart ──▶ allocate port ──▶ spawn subprocess ──▶ poll health
	                                                         │
	                         healthy ◀───────────────────────┘
	                            │
	         unexpected exit ──▶ stopped (port released, restart on demand)
	         StopTenant ───────▶ SIGTERM, grace period, SIGKILL

Startup is considered failed if the worker does not report healthy within
the configured startup timeout; the subprocess is killed and the port
returned to the pool.
*/
package manager
