// Package crypto implements the primitives of the stream security core.
//
// # Randomness
//
// All keys, salts and IVs come from a [CombinedSource]: the output of a
// Fortuna generator ([FortunaGenerator]) XORed with crypto/rand. The
// generator rekeys itself after every request so a later state compromise
// does not reveal earlier output. [FortunaSelfTest] checks the construction
// against fixed vectors and [NewComponent] refuses to start if it fails.
//
// # Key hierarchy
//
// A master secret is agreed once per contact with X25519:
//
//	master, err := crypto.DeriveMasterSecret(peerPublic, ourKeyPair, alice)
//
// [DeriveInitialSecret] expands it into one secret per transport and
// [DeriveNextSecret] rotates that secret once per period. A period secret
// yields a tag key ([DeriveTagKey]) and per-stream frame keys
// ([DeriveFrameKey]) for each direction. Derivation uses HMAC-SHA256 in
// counter mode ([CounterModeKDF]); the master secret itself comes from a
// SHA-256 concatenation KDF ([ConcatenationKDF]).
//
// # Secret keys
//
// [SecretKey] owns its bytes. Erase zeroes them exactly once, and any use of
// an erased key panics with [ErrSecretKeyErased]:
//
//	key, _ := crypto.GenerateSecretKey(random)
//	defer key.Erase()
//
// # Encryption
//
// [NewGCMCipher] returns AES-256-GCM with the IV authenticated as additional
// data. [PasswordEncrypter] seals local secrets under a password using
// PBKDF2-HMAC-SHA256, calibrated once by [Calibrator] to cost about half a
// second. [EncryptedKeyStore] stores such blobs on disk and keeps one
// derived [SealingKey], so only the first write pays for PBKDF2.
package crypto
