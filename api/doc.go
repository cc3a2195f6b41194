// Package api defines the request and response bodies of the VoiceFlow
// admin HTTP API.
//
// # API Overview
//
// The admin API inspects and edits live voice sessions:
//   - Base agent catalogue
//   - Per-session agent overrides and custom agents
//   - Handoff resolution and session start
//   - Supervisor advisory fan-out
//   - Session checkpoints
//   - A WebSocket control channel for the realtime transport (see Frame)
//
// # Authentication
//
// When API keys are configured, requests carry the X-API-Key header.
// When a JWT secret is configured, requests carry an HS256 bearer token:
//
//	Authorization: Bearer <token>
//
// Writes with source "admin" require the configured admin role claim.
//
// # Response Envelope
//
// Every JSON response uses the same envelope:
//
//	{"success": true, "data": {...}, "timestamp": "..."}
//	{"success": false, "error": {"code": "UNKNOWN_AGENT", "message": "..."}, "timestamp": "..."}
package api
