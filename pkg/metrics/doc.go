// Package metrics exposes Prometheus collectors for dispatch outcomes,
// rate-limit rejections, retries and queue depth.
package metrics
