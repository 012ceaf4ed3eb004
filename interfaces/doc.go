// Package interfaces defines the collaborators the stream security core
// consumes but does not implement itself.
//
// [IStreamContextProvider] is the key manager: it hands out a
// [StreamContext] for each outgoing stream and maps incoming tags back to
// the context that produced them. transport.KeyManager is the in-module
// implementation.
//
// [ISecretStore] persists master and period secrets as raw bytes by name.
// crypto.EncryptedKeyStore implements it on top of password blobs:
//
//	store, err := crypto.NewEncryptedKeyStore(dir, password, component.PasswordEncrypter())
//	if err != nil {
//	    return err
//	}
//	var _ interfaces.ISecretStore = store
//
// [IPasswordSource] supplies the password at encrypt and decrypt time; the
// command-line tool reads it from the terminal or an environment variable.
package interfaces
