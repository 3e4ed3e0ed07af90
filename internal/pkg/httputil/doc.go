// Package httputil holds the JSON request/response helpers shared by
// every API handler, keeping status codes and error payloads uniform
// across the surface.
package httputil
