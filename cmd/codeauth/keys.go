// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/holomush/codeauth/internal/token"
	"github.com/holomush/codeauth/internal/xdg"
)

type keysGenerateConfig struct {
	algorithm  string
	privateKey string
	publicKey  string
}

// NewKeysCmd creates the keys subcommand.
func NewKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage JWT signing keys",
	}

	cfg := &keysGenerateConfig{}
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate a PEM key pair for token signing",
		Long: `Generate a PKCS #8 private key and a PKIX public key for RS256, ES256
or EdDSA. Existing files are never overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runKeysGenerate(cmd, cfg)
		},
	}
	flags := generate.Flags()
	flags.StringVar(&cfg.algorithm, "algorithm", token.AlgRS256, "signing algorithm (RS256, ES256 or EdDSA)")
	flags.StringVar(&cfg.privateKey, "private-key", filepath.Join(xdg.KeysDir(), "jwt-private.pem"), "private key output path")
	flags.StringVar(&cfg.publicKey, "public-key", filepath.Join(xdg.KeysDir(), "jwt-public.pem"), "public key output path")
	cmd.AddCommand(generate)

	return cmd
}

func runKeysGenerate(cmd *cobra.Command, cfg *keysGenerateConfig) error {
	pair, err := token.GenerateKeyPair(cfg.algorithm)
	if err != nil {
		return err
	}
	if err := pair.Save(cfg.privateKey, cfg.publicKey); err != nil {
		return err
	}

	cmd.Printf("Wrote %s private key to %s\n", cfg.algorithm, cfg.privateKey)
	cmd.Printf("Wrote %s public key to %s\n", cfg.algorithm, cfg.publicKey)
	cmd.Println("Set jwt.algorithm, jwt.private_key_path and jwt.public_key_path to use them.")
	return nil
}
