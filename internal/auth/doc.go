// Package auth issues and validates the bearer tokens of the admin API.
//
// There are no user accounts. An operator mints a token with
// `agctl token --role admin`, signed with the shared secret from
// security.jwt.secret, and presents it as "Authorization: Bearer <token>".
// Roles map to a fixed permission set:
//
//	viewer  read cards, access log, security events, backups, status
//	admin   viewer + card changes + backup create/restore/cleanup
package auth
