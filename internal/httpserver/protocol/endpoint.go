// Package protocol describes groups of HTTP routes the server mounts.
package protocol

import "net/http"

// EndpointRoute is one method and path served by an endpoint.
type EndpointRoute struct {
	Method  string
	Path    string
	Handler http.Handler
}

// Endpoint is a named group of routes, registered together.
type Endpoint interface {
	Name() string
	Routes() []EndpointRoute
}
