// Package server hosts the Fiber application: the middleware chain (panic
// recovery, request ids), the shared upstream http.Client and the header
// helpers used by every component that talks to the network. Named routes
// are attached through RouteRegistrar so the catch-all edge proxy always
// comes last.
package server
