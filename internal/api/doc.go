// Package api provides the administrative HTTP API and WebSocket live feed
// for AccessGuard.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
//
// # Routes
//
// All routes live under /api/v1. Everything except /health, /metrics and
// /ws needs "Authorization: Bearer <token>" (see package auth):
//
//	GET    /status                  store, broker, backups, counts, router counters
//	GET    /cards                   list cards
//	POST   /cards                   add a card {"card_id", "description"}
//	GET    /cards/{id}              card with its 10 most recent log entries
//	DELETE /cards/{id}              remove a card
//	GET    /logs                    access log (?uid, ?since, ?limit)
//	GET    /events                  security events (?since | ?period, ?limit)
//	GET    /audit                   admin audit trail (?action, ?target, ?limit, ?offset)
//	GET    /backups                 backup summaries, newest first
//	POST   /backups                 take a backup {"type": "manual"}
//	GET    /backups/latest          newest backup with payload
//	GET    /backups/status          count and newest per type
//	GET    /backups/{id}/validate   check a stored backup
//	POST   /backups/{id}/restore    restore from the stored copy
//	POST   /backups/restore-file    restore from a file {"file_name"}
//	POST   /backups/cleanup         apply retention now
//	POST   /ws-ticket               single-use ticket for /ws
//
// # Live feed
//
// GET /ws?ticket=... upgrades to a WebSocket. Clients subscribe to
// "access.decision" and "security.event":
//
//	{"type": "subscribe", "id": "1", "payload": {"channels": ["security.event"]}}
//
// # Graceful Degradation
//
// The API works without a broker connection; /status then reports mqtt as
// not connected. Card changes made here trigger the same card_add and
// card_remove backups as MQTT commands.
package api
