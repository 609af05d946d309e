// Package audit carries account events off the request path.
//
// The engine builds an [Event] for every registration, login, MFA, reset,
// refresh and rate-limit outcome and hands it to a [Dispatcher], which
// delivers it on one goroutine to a [Sink]: zap, Kafka, the Postgres
// activity log, or a [MultiSink] of several. Events carry stable error
// codes and never OTP codes, passwords or tokens.
package audit
