// Package secrets turns stored platform credentials into the secret map the
// remote executor expects, and seals credential passwords at rest with age.
//
// A SecretMap is built per submission and is never cached or persisted.
package secrets
