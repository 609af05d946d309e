// Package internal holds the account ID and numeric code generators shared
// by the flows.
//
// # Sub-packages
//
//   - audit: async event dispatch and the zap and kafka sinks
//   - config: environment configuration for falcomauthd
//   - flows: the registration, login, reset and refresh orchestrators
//   - httpapi: the /api/user routes
//   - logging: zap logger construction
//   - rate: Redis fixed-window limiter for the HTTP routes
//   - security: posture report derived from the engine config
package internal
