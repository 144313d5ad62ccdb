// Package repositories implements SQLite persistence for the small amount of state vidx keeps between runs.
//
// The only persisted entity is the bearer credential and the identity it last resolved to:
//   - [CredentialRepository] : one row per profile, upserted on login and removed on logout
//
// The cached identity is advisory; the session store re-validates it against the server on startup.
package repositories
