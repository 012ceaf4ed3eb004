package commands

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opd-ai/securestream/crypto"
)

// keygen: generate a key pair, seal the private half under a password.
func (c *cli) keygenCmd() *cobra.Command {
	var (
		keyType string
		out     string
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an agreement or signature key pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			component, err := c.newComponent()
			if err != nil {
				return err
			}

			var kp *crypto.KeyPair
			switch keyType {
			case "agreement":
				kp, err = component.GenerateAgreementKeyPair()
			case "signature":
				kp, err = component.GenerateSignatureKeyPair()
			default:
				return fmt.Errorf("unknown key type %q (agreement or signature)", keyType)
			}
			if err != nil {
				return err
			}
			defer crypto.WipeKeyPair(kp)

			password, err := terminalPassword{prompt: cmd.ErrOrStderr(), confirm: true}.Password(context.Background(), "private key")
			if err != nil {
				return err
			}
			private := append([]byte{byte(kp.Type())}, kp.Private.Encoded()...)
			defer crypto.ZeroBytes(private)
			blob, err := component.EncryptWithPassword(private, password)
			if err != nil {
				return err
			}
			if err := writeSecretFile(out, blob); err != nil {
				return err
			}
			public := hex.EncodeToString(kp.Public.Encoded())
			if err := writeSecretFile(out+".pub", []byte(public+"\n")); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), public)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyType, "type", "agreement", "key type: agreement or signature")
	cmd.Flags().StringVarP(&out, "out", "o", "securestream.key", "private key file (public key goes to <out>.pub)")
	return cmd
}

var errWrongPassword = errors.New("wrong password or corrupt file")

// loadPrivateKey unseals a key written by keygen.
func loadPrivateKey(component *crypto.Component, path, password string) (*crypto.KeyPair, error) {
	blob, err := readFile(path)
	if err != nil {
		return nil, err
	}
	raw, ok := component.DecryptWithPassword(blob, password)
	if !ok {
		return nil, errWrongPassword
	}
	defer crypto.ZeroBytes(raw)
	if len(raw) == 0 || crypto.KeyType(raw[0]) != crypto.KeyTypeAgreement {
		return nil, fmt.Errorf("%s is not an agreement key", path)
	}
	return crypto.AgreementKeyPairFromPrivate(raw[1:])
}
