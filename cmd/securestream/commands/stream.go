package commands

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/opd-ai/securestream"
	"github.com/opd-ai/securestream/config"
	"github.com/opd-ai/securestream/interfaces"
	"github.com/opd-ai/securestream/transport"
)

type streamFlags struct {
	contactFile    string
	contactID      string
	transportID    string
	transportIndex uint32
	storeDir       string
}

func (f *streamFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.contactFile, "contact", "c", "contact.sealed", "contact file written by agree")
	cmd.Flags().StringVar(&f.contactID, "name", "peer", "local name for the contact")
	cmd.Flags().StringVar(&f.transportID, "transport", "tcp", "transport identifier")
	cmd.Flags().Uint32Var(&f.transportIndex, "transport-index", 0, "transport index used in key derivation; must match the peer")
	cmd.Flags().StringVar(&f.storeDir, "store", "", "key store directory (default key_store_dir or ~/.securestream/keys)")
}

// openCore starts a persistent Core and makes sure the contact is
// registered. Stream counters live in the key store so numbers are never
// reused across runs.
func (f *streamFlags) openCore(cmd *cobra.Command, cfg *config.Config) (*securestream.Core, error) {
	conf := *cfg
	opts := securestream.NewOptions()
	opts.Config = &conf
	if f.storeDir != "" {
		opts.Config.KeyStoreDir = f.storeDir
	}
	if opts.Config.KeyStoreDir == "" {
		dir, err := defaultStoreDir()
		if err != nil {
			return nil, err
		}
		opts.Config.KeyStoreDir = dir
	}

	password, err := terminalPassword{prompt: cmd.ErrOrStderr()}.Password(cmd.Context(), "key store")
	if err != nil {
		return nil, err
	}
	opts.PasswordSource = interfaces.StaticPassword(password)

	core, err := securestream.New(opts)
	if err != nil {
		return nil, err
	}
	peer, err := loadContact(core.Crypto(), f.contactFile, password)
	if err != nil {
		core.Close()
		return nil, err
	}
	defer peer.master.Erase()

	err = core.AddContact(f.contactID, f.transportID, f.transportIndex, peer.master, peer.alice, peer.epoch)
	if err != nil && !errors.Is(err, transport.ErrDuplicateEndpoint) {
		core.Close()
		return nil, err
	}
	return core, nil
}

// send: read stdin and write it as one stream to a listening peer.
func (c *cli) sendCmd() *cobra.Command {
	var flags streamFlags
	cmd := &cobra.Command{
		Use:   "send <host:port>",
		Short: "Send stdin to a peer as one encrypted stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			core, err := flags.openCore(cmd, c.cfg)
			if err != nil {
				return err
			}
			defer core.Close()

			conn, err := core.Dialer().Dial(ctx, args[0])
			if err != nil {
				return err
			}
			defer conn.Close()

			w, err := core.OpenOutgoingStream(conn, flags.contactID, flags.transportID)
			if err != nil {
				return err
			}
			start := time.Now()
			n, err := io.Copy(w, cmd.InOrStdin())
			if cerr := w.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			logrus.WithFields(logrus.Fields{
				"function": "send",
				"bytes":    n,
				"duration": time.Since(start).String(),
			}).Info("Stream sent")
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

// listen: accept one stream and write its plaintext to stdout.
func (c *cli) listenCmd() *cobra.Command {
	var flags streamFlags
	cmd := &cobra.Command{
		Use:   "listen <host:port>",
		Short: "Receive one encrypted stream and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			core, err := flags.openCore(cmd, c.cfg)
			if err != nil {
				return err
			}
			defer core.Close()

			l, err := transport.Listen(ctx, args[0])
			if err != nil {
				return err
			}
			defer l.Close()
			go func() {
				<-ctx.Done()
				l.Close()
			}()

			conn, err := l.Accept()
			if err != nil {
				return err
			}
			defer conn.Close()

			r, info, err := core.AcceptIncomingStream(conn)
			if err != nil {
				return err
			}
			defer r.Close()
			fmt.Fprintf(cmd.ErrOrStderr(), "stream %d from %s over %s\n", info.StreamNumber, info.ContactID, info.TransportID)
			_, err = io.Copy(cmd.OutOrStdout(), r)
			return err
		},
	}
	flags.register(cmd)
	return cmd
}

