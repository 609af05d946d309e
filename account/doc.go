// Package account defines the credential record shared by every falcomAuth flow
// and the storage contract that backends implement.
//
// # Architecture boundaries
//
// account owns the data model (Account, OTP, Counter) and the pure rules that
// decide what a stored OTP or a failure counter means at a given instant. Store
// backends (store/memstore, store/redisstore, store/pgstore) persist the model and
// must apply Counter.Fail and the conditional completions atomically per account.
//
// # What this package must NOT do
//
//   - Perform I/O. Everything here is a value type or an interface.
//   - Hold plaintext OTP codes. Slots carry only the SHA-256 of the code.
//   - Import the root falcomAuth package or anything under internal/flows.
package account
