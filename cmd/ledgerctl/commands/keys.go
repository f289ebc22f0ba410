package commands

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	jwttoken "credtrust/internal/jwt_token"
	"credtrust/internal/ledger/models"
	"credtrust/internal/platform/config"
	"credtrust/internal/verification/signature"
)

func NewTokenCommand() *cobra.Command {
	var (
		issuer string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for POST /credentials",
		Long: `Mint a bearer token for POST /credentials

Signed with JWT_SIGNING_KEY for JWT_ISSUER / JWT_AUDIENCE, the same settings
the server validates against.`,
		Example: `  ledgerctl token --issuer ACME
  ledgerctl token --issuer ops --role operator --ttl 15m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(issuer) == "" {
				return fmt.Errorf("--issuer is required")
			}
			if role != jwttoken.RoleIssuer && role != jwttoken.RoleOperator {
				return fmt.Errorf("--role must be %q or %q", jwttoken.RoleIssuer, jwttoken.RoleOperator)
			}
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			svc := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
			token, err := svc.GenerateIssuerToken(issuer, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&issuer, "issuer", "", "issuer name the token acts for")
	cmd.Flags().StringVar(&role, "role", jwttoken.RoleIssuer, "issuer or operator")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func NewKeygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ed25519 issuer signing key pair",
		Long: `Generate an ed25519 issuer signing key pair

The public key goes into ISSUER_SIGNING_KEYS as <issuer>=<public>; the private
key stays with the issuer and is used by "ledgerctl sign".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "public:  %s\n", hex.EncodeToString(pub))
			fmt.Fprintf(out, "private: %s\n", hex.EncodeToString(priv))
			return nil
		},
	}
}

func NewSignCommand() *cobra.Command {
	var keyHex string
	cmd := &cobra.Command{
		Use:     "sign <record.json>",
		Short:   "Sign a credential record with an issuer private key",
		Example: `  ledgerctl sign --key $ISSUER_PRIVATE_KEY credential.json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := hex.DecodeString(strings.TrimSpace(keyHex))
			if err != nil || len(raw) != ed25519.PrivateKeySize {
				return fmt.Errorf("--key must be a hex-encoded %d-byte ed25519 private key", ed25519.PrivateKeySize)
			}
			doc, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var record models.CredentialRecord
			if err := json.Unmarshal(doc, &record); err != nil {
				return fmt.Errorf("decode record: %w", err)
			}
			if err := record.Normalize().Validate(); err != nil {
				return err
			}
			sig, err := signature.Sign(ed25519.PrivateKey(raw), record)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyHex, "key", "", "hex-encoded ed25519 private key")
	return cmd
}
