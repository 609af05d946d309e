// Package flows holds the orchestration behind every Engine operation.
//
// Each RunX function takes a typed dependency struct built by the root
// package and touches the outside world only through it: the account store,
// the notifier and captcha callbacks, metrics and audit. Flows keep no state
// between calls and must not import the root package.
package flows
