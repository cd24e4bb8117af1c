// Mercator Ganymede is a TLS-terminating ingress router.
//
// It multiplexes HTTP(S) traffic across virtual hosts to local backend
// services, providing:
//   - SNI-based certificate selection with hot reload
//   - Host-based routing to per-host backends
//   - ACME HTTP-01 challenge serving for certificate issuance
//   - A stub_status-style counter endpoint and Prometheus metrics
//   - Streaming request forwarding with pooled backend connections
//
// Usage:
//
//	# Start the ingress with default configuration
//	ganymede run
//
//	# Start with a custom configuration file
//	ganymede run --config /etc/ganymede/config.yaml
//
//	# Validate configuration and certificates without serving
//	ganymede check
//
//	# Inspect configured certificate bindings
//	ganymede certs info
//
//	# Show version information
//	ganymede version
package main

func main() {
	Execute()
}
