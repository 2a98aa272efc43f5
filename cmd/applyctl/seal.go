package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"filippo.io/age"
	"github.com/phrazzld/apply-orchestrator/internal/secrets"
	"github.com/spf13/cobra"
)

func newSealCmd(c *cli) *cobra.Command {
	var identityPath string
	cmd := &cobra.Command{
		Use:   "seal --identity FILE",
		Short: "Seal a platform password read from stdin",
		Long: `Seal a platform password for storage in the profile store.

The password is read from the first line of stdin and printed as an
ENC[age:...] value that the server opens with the same identity.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if identityPath == "" {
				identityPath = c.v.GetString("identity")
			}
			if identityPath == "" {
				return errors.New("an age identity is required (--identity or APPLYCTL_IDENTITY)")
			}
			sealer, err := secrets.LoadSealer(identityPath)
			if err != nil {
				return err
			}

			line, err := bufio.NewReader(c.in).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password from stdin: %w", err)
			}
			plaintext := strings.TrimRight(line, "\r\n")
			if plaintext == "" {
				return errors.New("empty password")
			}

			sealed, err := sealer.Seal(plaintext)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, sealed)
			return nil
		},
	}
	cmd.Flags().StringVar(&identityPath, "identity", "", "age identity file")
	return cmd
}

func newKeygenCmd(c *cli) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "keygen --out FILE",
		Short: "Generate the age identity used to seal credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, err := age.GenerateX25519Identity()
			if err != nil {
				return fmt.Errorf("generate identity: %w", err)
			}

			f, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
			if err != nil {
				return fmt.Errorf("create identity file: %w", err)
			}
			_, werr := fmt.Fprintf(f, "# created: %s\n# public key: %s\n%s\n",
				time.Now().UTC().Format(time.RFC3339), identity.Recipient(), identity)
			if cerr := f.Close(); werr == nil {
				werr = cerr
			}
			if werr != nil {
				return fmt.Errorf("write identity file: %w", werr)
			}

			fmt.Fprintf(c.out, "Public key: %s\n", identity.Recipient())
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "path to write the identity to")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
