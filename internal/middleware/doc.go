// Package middleware provides HTTP middleware for the tagging API.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics labelled by route template
//   - gzip compression of JSON and text responses
package middleware
