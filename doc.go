// Package identity provides the session and identity lifecycle core for a
// retail banking console: device-scoped session tracking, activity auditing,
// and multi-source admin resolution layered on a hosted credential backend.
//
// Session lifecycle:
//   - Sessions are keyed by (profile, device name) and persisted via Bun. A
//     repeat sign-in from a known device reactivates the existing row instead
//     of minting a new one, so the session list reads one row per device.
//   - The Orchestrator owns the authentication state machine (anonymous,
//     authenticating, authenticated) and is the only writer of session and
//     activity rows on the auth path. Subscribe to the state machine for UI
//     re-renders.
//
// Activity auditing:
//   - ActivityLog rows are append-only. Recorders run best-effort (errors are
//     logged) so auditing never blocks or fails an authentication flow.
//     Stored tokens are truncated to a short prefix.
//
// Admin resolution:
//   - AdminResolver consults the profile flag, the admin_users grant table,
//     and the bootstrap email concurrently and ORs the results. Divergent
//     sources are repaired in place; resolution failures read as non-admin so
//     privileged UI stays hidden rather than flickering.
package identity
