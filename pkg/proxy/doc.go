// Package proxy implements the forwarding engine: a checkout/return pool
// of HTTP/1.1 backend connections and the request/response relay that uses
// it. Responses are streamed to the client as they arrive; nothing is
// buffered whole.
package proxy
