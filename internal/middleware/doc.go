// Package middleware provides HTTP middleware for the operations server.
//
// It includes:
//   - Structured request logging through zap, with control characters
//     stripped from client-supplied fields
//   - Prometheus request metrics labeled by route template
package middleware
