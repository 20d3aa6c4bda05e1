/*
Package session keeps a registry of live proxies and orchestrates saving
and restoring their demand state.

Operations on one proxy are serialized with a reference-counted local lock
and, optionally, a distributed lock, so several replicas can share a
snapshot store.
*/
package session
