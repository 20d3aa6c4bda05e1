/*
Package observability turns proxy lifecycle hooks into Prometheus metrics.

Metrics.Hooks returns domain.LifecycleHooks that can be merged with any
other hooks (logging, auditing) and passed to a proxy with
proxyshape.WithLifecycleHooks.
*/
package observability
