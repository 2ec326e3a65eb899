// Package server provides the gin-based ingress of the proxy.
//
// Every service of the registry is mounted on its originalPath. The
// mount answers the bare prefix and everything below it
// ({originalPath}/*relativePath); a service mounted on "/" catches every
// path. Requests are handed to the service's proxy.Handler unchanged:
// trailing slashes are never redirected and paths are never cleaned.
package server
