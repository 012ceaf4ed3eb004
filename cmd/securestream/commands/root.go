package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/opd-ai/securestream/config"
	"github.com/opd-ai/securestream/crypto"
)

// PasswordEnv, when set, supplies the password without prompting.
const PasswordEnv = "SECURESTREAM_PASSWORD"

// cli holds the state shared by one command tree.
type cli struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "securestream",
		Short:         "Encrypted streams between paired devices",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if c.configPath != "" {
				c.cfg, err = config.LoadConfig(c.configPath)
				if err != nil {
					return err
				}
			} else {
				c.cfg = config.DefaultConfig()
				config.ApplyEnvironmentOverrides(c.cfg)
			}
			if c.logLevel != "" {
				c.cfg.LogLevel = c.logLevel
			}
			if err := c.cfg.Validate(); err != nil {
				return err
			}
			return c.cfg.ApplyLogging()
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(
		c.selftestCmd(),
		c.calibrateCmd(),
		c.keygenCmd(),
		c.agreeCmd(),
		c.sealCmd(),
		c.unsealCmd(),
		c.sendCmd(),
		c.listenCmd(),
	)
	return root
}

// Execute runs the CLI.
func Execute() error {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "error:", err)
		return err
	}
	return nil
}

// newComponent starts the crypto component with the configured PBKDF2 cost.
func (c *cli) newComponent() (*crypto.Component, error) {
	return crypto.NewComponent(crypto.NewSeedProvider(), c.cfg.PBKDFTargetMillis)
}

// terminalPassword reads the password from PasswordEnv or the terminal.
type terminalPassword struct {
	prompt io.Writer
	// confirm asks twice, for passwords that protect new secrets.
	confirm bool
}

func (p terminalPassword) Password(_ context.Context, purpose string) (string, error) {
	if v := os.Getenv(PasswordEnv); v != "" {
		return v, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal; set %s", PasswordEnv)
	}

	fmt.Fprintf(p.prompt, "Password (%s): ", purpose)
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(p.prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	defer crypto.ZeroBytes(first)
	if len(first) == 0 {
		return "", errors.New("empty password")
	}
	if p.confirm {
		fmt.Fprintf(p.prompt, "Confirm password: ")
		second, err := term.ReadPassword(fd)
		fmt.Fprintln(p.prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		defer crypto.ZeroBytes(second)
		if string(first) != string(second) {
			return "", errors.New("passwords do not match")
		}
	}
	return string(first), nil
}

// defaultStoreDir is used when neither --store nor key_store_dir is set.
func defaultStoreDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".securestream", "keys"), nil
}

// writeSecretFile writes data readable only by the owner.
func writeSecretFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	logrus.WithFields(logrus.Fields{
		"function": "writeSecretFile",
		"path":     path,
		"size":     len(data),
	}).Debug("Wrote secret file")
	return nil
}

func readTrimmed(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
