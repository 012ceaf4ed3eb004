package commands

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/opd-ai/securestream/crypto"
)

// seal: encrypt a file with a password.
func (c *cli) sealCmd() *cobra.Command {
	var in, out string
	cmd := &cobra.Command{
		Use:   "seal",
		Short: "Encrypt data under a password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plaintext, err := readInput(cmd, in)
			if err != nil {
				return err
			}
			defer crypto.ZeroBytes(plaintext)
			component, err := c.newComponent()
			if err != nil {
				return err
			}
			password, err := terminalPassword{prompt: cmd.ErrOrStderr(), confirm: true}.Password(context.Background(), "seal")
			if err != nil {
				return err
			}
			blob, err := component.EncryptWithPassword(plaintext, password)
			if err != nil {
				return err
			}
			return writeOutput(cmd, out, blob)
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "-", "input file, - for stdin")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	return cmd
}

// unseal: decrypt a file written by seal.
func (c *cli) unsealCmd() *cobra.Command {
	var in, out string
	cmd := &cobra.Command{
		Use:   "unseal",
		Short: "Decrypt data sealed under a password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			blob, err := readInput(cmd, in)
			if err != nil {
				return err
			}
			component, err := c.newComponent()
			if err != nil {
				return err
			}
			password, err := terminalPassword{prompt: cmd.ErrOrStderr()}.Password(context.Background(), "unseal")
			if err != nil {
				return err
			}
			plaintext, ok := component.DecryptWithPassword(blob, password)
			if !ok {
				return errWrongPassword
			}
			defer crypto.ZeroBytes(plaintext)
			return writeOutput(cmd, out, plaintext)
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "-", "input file, - for stdin")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return readFile(path)
}

func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	return writeSecretFile(path, data)
}

