// Package tls implements TLS termination for the ingress: per-hostname
// certificate bindings selected by SNI, configuration-supplied protocol
// parameters validated at load, and automatic reload of renewed
// certificates via an atomic swap of the whole binding table.
package tls
