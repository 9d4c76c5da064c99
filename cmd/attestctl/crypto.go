package main

import (
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"attestor/internal/attestation/digest"
	"attestor/internal/attestation/signer"
	"attestor/internal/attestation/verifier"
)

var errInvalidSignature = errors.New("signature does not recover to the authority")

func newAddressCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "address",
		Short: "Print the authority address for a private key",
		Example: `  attestctl address --key 0xac09...ff80
  AUTHORITY_PRIVATE_KEY=0x... attestctl address`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSigner(key)
			if err != nil {
				return err
			}
			defer s.Close()
			fmt.Fprintln(cmd.OutOrStdout(), s.Address().Hex())
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "hex private key (defaults to $"+keyEnv+")")
	return cmd
}

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "hash <wallet> <nonce>",
		Short:   "Print the message hash and personal-message hash for a credential",
		Example: `  attestctl hash 0x70997970C51812dc3A010C7d01b50e0d17dc79C8 0`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, nonce, err := parseSubject(args[0], args[1])
			if err != nil {
				return err
			}
			msg, err := digest.MessageHash(addr, nonce)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "message:  %s\n", msg.Hex())
			fmt.Fprintf(out, "personal: %s\n", digest.PersonalHash(msg).Hex())
			return nil
		},
	}
}

func newSignCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "sign <wallet> <nonce>",
		Short: "Sign a credential offline with the authority key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, nonce, err := parseSubject(args[0], args[1])
			if err != nil {
				return err
			}
			s, err := loadSigner(key)
			if err != nil {
				return err
			}
			defer s.Close()

			msg, err := digest.MessageHash(addr, nonce)
			if err != nil {
				return err
			}
			sig, err := s.SignDigest(msg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig.Hex())
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "hex private key (defaults to $"+keyEnv+")")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <wallet> <nonce> <signature> <authority>",
		Short: "Check a credential against an authority address",
		Long:  "Exits non-zero when the signature does not recover to the authority.",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			nonce, ok := new(big.Int).SetString(args[1], 10)
			if !ok {
				return fmt.Errorf("nonce %q is not a decimal integer", args[1])
			}
			if !verifier.Verify(args[0], nonce, args[2], args[3]) {
				if recovered, ok := verifier.Recover(args[0], nonce, args[2]); ok {
					fmt.Fprintf(cmd.OutOrStdout(), "invalid (recovered %s)\n", recovered.Hex())
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "invalid")
				}
				return errInvalidSignature
			}
			fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return nil
		},
	}
}

func loadSigner(key string) (*signer.Signer, error) {
	if key == "" {
		key = os.Getenv(keyEnv)
	}
	return signer.Load(key)
}

func parseSubject(rawAddr, rawNonce string) (common.Address, *big.Int, error) {
	if !common.IsHexAddress(rawAddr) {
		return common.Address{}, nil, fmt.Errorf("%q is not a wallet address", rawAddr)
	}
	nonce, ok := new(big.Int).SetString(rawNonce, 10)
	if !ok {
		return common.Address{}, nil, fmt.Errorf("nonce %q is not a decimal integer", rawNonce)
	}
	return common.HexToAddress(rawAddr), nonce, nil
}
