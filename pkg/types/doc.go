/*
Package types defines the shared data model for ACS: tenant descriptors,
worker views, versioned tenant keys, encrypted fields, and the RPC envelope
exchanged between the gateway and tenant workers.

Types here have no behavior beyond validation helpers. Packages that own the
behavior (keystore, encryption, manager, dispatch) all depend on this package
and never on each other's internals.
*/
package types
