package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	jwttoken "attestor/internal/jwt_token"
)

const defaultServer = "http://localhost:8080"

type statusResponse struct {
	Verified  bool   `json:"verified"`
	Signature string `json:"signature,omitempty"`
}

func newStatusCmd() *cobra.Command {
	var (
		server  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:     "status <wallet>",
		Short:   "Query a running attestor for a wallet's verification status",
		Example: `  attestctl status 0x70997970C51812dc3A010C7d01b50e0d17dc79C8 --server http://localhost:8080`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			endpoint := strings.TrimRight(server, "/") + "/api/status/" + url.PathEscape(args[0])
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("query %s: %w", server, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
				return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, endpoint)
			}
			var body statusResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return fmt.Errorf("decode status response: %w", err)
			}

			out := cmd.OutOrStdout()
			switch {
			case resp.StatusCode == http.StatusNotFound:
				fmt.Fprintln(out, "unknown")
			case body.Verified:
				fmt.Fprintf(out, "verified %s\n", body.Signature)
			default:
				fmt.Fprintln(out, "not verified")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", defaultServer, "attestor base URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}

func newAdminTokenCmd() *cobra.Command {
	var (
		key     string
		issuer  string
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "admin-token",
		Short: "Mint a bearer token for the /admin endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if key == "" {
				key = os.Getenv("ADMIN_JWT_SIGNING_KEY")
			}
			if key == "" {
				return fmt.Errorf("--key or $ADMIN_JWT_SIGNING_KEY is required")
			}
			token, err := jwttoken.NewJWTService(key, issuer).GenerateAdminToken(subject, jwttoken.RoleAdmin, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "HMAC signing key (defaults to $ADMIN_JWT_SIGNING_KEY)")
	cmd.Flags().StringVar(&issuer, "issuer", "attestor", "token issuer")
	cmd.Flags().StringVar(&subject, "subject", "operator", "operator identity recorded in audit events")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
