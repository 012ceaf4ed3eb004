package commands

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/opd-ai/securestream/crypto"
)

// agree: derive the master secret shared with a peer and save it as a
// contact file.
func (c *cli) agreeCmd() *cobra.Command {
	var (
		keyPath string
		peer    string
		epoch   string
		out     string
	)
	cmd := &cobra.Command{
		Use:   "agree",
		Short: "Derive the master secret shared with a peer",
		Long: "Derive the master secret shared with a peer from our agreement key and\n" +
			"their public key. Both sides must use the same --epoch. The roles are\n" +
			"assigned by comparing public keys. Compare the printed confirmation codes\n" +
			"over a trusted channel before using the contact.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			theirs, err := parsePeerKey(peer)
			if err != nil {
				return err
			}
			created, err := parseEpoch(epoch)
			if err != nil {
				return err
			}
			component, err := c.newComponent()
			if err != nil {
				return err
			}

			password, err := terminalPassword{prompt: cmd.ErrOrStderr()}.Password(context.Background(), "private key")
			if err != nil {
				return err
			}
			ours, err := loadPrivateKey(component, keyPath, password)
			if err != nil {
				return err
			}
			defer crypto.WipeKeyPair(ours)

			alice := bytes.Compare(ours.Public.Encoded(), theirs) < 0
			master, err := component.DeriveMasterSecret(theirs, ours, alice)
			if err != nil {
				return err
			}
			defer master.Erase()

			aliceCode, bobCode, err := crypto.DeriveConfirmationCodes(master)
			if err != nil {
				return err
			}
			ourCode, theirCode := aliceCode, bobCode
			if !alice {
				ourCode, theirCode = bobCode, aliceCode
			}

			if err := saveContact(component, out, password, &contact{alice: alice, epoch: created, master: master}); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "role:       %s\n", roleName(alice))
			fmt.Fprintf(w, "your code:  %06d\n", ourCode)
			fmt.Fprintf(w, "their code: %06d\n", theirCode)
			fmt.Fprintf(w, "contact saved to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&keyPath, "key", "k", "securestream.key", "our sealed agreement key")
	cmd.Flags().StringVar(&peer, "peer", "", "peer public key, hex or @file")
	cmd.Flags().StringVar(&epoch, "epoch", "", "relationship start, RFC 3339 or YYYY-MM-DD (default today, UTC)")
	cmd.Flags().StringVarP(&out, "out", "o", "contact.sealed", "contact file to write")
	_ = cmd.MarkFlagRequired("peer")
	return cmd
}

func roleName(alice bool) string {
	if alice {
		return "alice"
	}
	return "bob"
}

func parsePeerKey(v string) ([]byte, error) {
	if strings.HasPrefix(v, "@") {
		s, err := readTrimmed(v[1:])
		if err != nil {
			return nil, err
		}
		v = s
	}
	key, err := hex.DecodeString(strings.TrimSpace(v))
	if err != nil {
		return nil, fmt.Errorf("peer key is not hex: %w", err)
	}
	if _, err := (crypto.AgreementKeyParser{}).ParsePublicKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

func parseEpoch(v string) (time.Time, error) {
	if v == "" {
		return time.Now().UTC().Truncate(24 * time.Hour), nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad epoch %q: want RFC 3339 or YYYY-MM-DD", v)
	}
	return t, nil
}
