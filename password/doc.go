// Package password hashes, verifies and vets account passwords.
//
// # Output format
//
// New hashes are argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verify also accepts bcrypt hashes ($2a$, $2b$, $2y$) carried over from the
// previous store. NeedsUpgrade reports true for those and for argon2id hashes
// produced with weaker parameters, so the caller can re-hash after the next
// successful login.
//
// [Policy] checks composition rules before anything is hashed.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other falcomAuth package.
//   - Log plaintext passwords.
package password
