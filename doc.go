// Package securestream turns an untrusted byte stream into a confidential,
// integrity-protected and replay-resistant channel between two paired
// devices.
//
// # Getting Started
//
// Build a Core, agree a master secret with a contact and exchange streams:
//
//	core, err := securestream.New(securestream.NewOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer core.Close()
//
//	ours, _ := core.Crypto().GenerateAgreementKeyPair()
//	master, err := core.DeriveMasterSecretAsync(ctx, theirPublicKey, ours, true)
//	err = core.AddContact("bob", "tcp", 0, master, true, created)
//	master.Erase()
//
//	w, err := core.OpenOutgoingStream(conn, "bob", "tcp")
//	w.Write(data)
//	w.Close()
//
// On the receiving side AcceptIncomingStream reads the stream's tag, finds
// the contact it belongs to and returns an io.Reader over the payload.
//
// # Packages
//
//   - crypto: randomness, key derivation, agreement, signatures, AEAD and
//     password-based encryption of local secrets
//   - transport: the frame format, key rotation and outbound dialing
//   - config: YAML configuration with SECURESTREAM_* environment overrides
//   - worker: the pool that runs agreement, signing and calibration
//   - limits: wire-format sizes shared by every package
//
// Heavy operations have Async variants that run on the worker pool and
// honour context cancellation.
package securestream
