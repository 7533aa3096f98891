// Package server implements the HTTP server for the sitedrop deployment gateway.
//
// This package provides:
//   - The /api/deploy endpoint accepting HTML or ZIP site uploads
//   - Per-client daily quota and cooldown enforcement
//   - Per-IP rate limiting to prevent abuse and DDoS attacks
//   - A health endpoint for monitoring
//   - Per-site deployment history via /api/sites/{siteName}
//   - Structured logging of all HTTP requests
//
// The server integrates with other packages:
//   - internal/quota: Client fingerprinting and quota/cooldown tracking
//   - internal/upload: Payload validation and archive extraction
//   - internal/provider: Vercel deployments API client
//   - internal/history: SQLite-based deployment attempt log
//
// Security features:
//   - Archive entry allow-list filtering and path traversal defense
//   - Deployment name validation (lowercase letters, digits, hyphens)
//   - Payload size limits
//   - Rate limiting (global and deploy-specific)
package server
