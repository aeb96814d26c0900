package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Infomaniak/infomaniak-login-go/internal/auth/infomaniak"
	"github.com/Infomaniak/infomaniak-login-go/internal/config"
	sdkAuth "github.com/Infomaniak/infomaniak-login-go/sdk/auth"
	log "github.com/sirupsen/logrus"
)

// TokenOptions selects the stored token a command works on.
type TokenOptions struct {
	// TokenFile is a file name in the auth directory or a path. When empty the
	// only token file of the auth directory is used.
	TokenFile string

	// Out receives user facing output; nil means stdout.
	Out io.Writer

	// authenticator overrides the default one in tests.
	authenticator *sdkAuth.InfomaniakAuthenticator
}

// client builds the token client for record, talking to the issuer the
// record was obtained from.
func (o *TokenOptions) client(cfg *config.Config, record *sdkAuth.Record) (*infomaniak.InfomaniakAuth, error) {
	a := o.authenticator
	if a == nil {
		a = sdkAuth.NewInfomaniakAuthenticator()
	}
	return a.Client(record.IssuerConfig(cfg))
}

// loadRecord reads the token file selected by options from the registered store.
func loadRecord(ctx context.Context, options *TokenOptions) (*sdkAuth.Record, error) {
	store := sdkAuth.GetTokenStore()
	if id := strings.TrimSpace(options.TokenFile); id != "" {
		return store.Load(ctx, id)
	}

	records, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	switch len(records) {
	case 0:
		return nil, fmt.Errorf("%w: no token file found, run -login first", sdkAuth.ErrRecordNotFound)
	case 1:
		return records[0], nil
	default:
		ids := make([]string, 0, len(records))
		for _, r := range records {
			ids = append(ids, r.ID)
		}
		return nil, fmt.Errorf("several token files found (%s), select one with -token-file", strings.Join(ids, ", "))
	}
}

// DoRefresh refreshes the stored token and rewrites its file.
//
// Parameters:
//   - ctx: Bounds the token request
//   - cfg: The application configuration
//   - options: Selects the token file
//
// Returns:
//   - error: ErrNoRefreshToken, a provider error or a store error
func DoRefresh(ctx context.Context, cfg *config.Config, options *TokenOptions) error {
	if options == nil {
		options = &TokenOptions{}
	}
	record, err := loadRecord(ctx, options)
	if err != nil {
		return err
	}
	client, err := options.client(cfg, record)
	if err != nil {
		return err
	}

	token, err := client.RefreshTokens(ctx, record.Token)
	if err != nil {
		return err
	}
	savedPath, err := sdkAuth.GetTokenStore().Save(ctx, record.WithToken(token))
	if err != nil {
		return err
	}
	log.WithField("path", savedPath).Debug("refreshed token saved")
	_, _ = fmt.Fprintf(outOrStdout(options.Out), "Token refreshed and saved to %s\n", savedPath)
	return nil
}

// DoDerive exchanges the stored token for a token bound to the attestation
// and saves it next to the original.
//
// Parameters:
//   - ctx: Bounds the token request
//   - cfg: The application configuration
//   - options: Selects the token file
//   - attestation: The JWT proving the identity of the requesting app
//
// Returns:
//   - error: ErrInvalidAttestation, a provider error or a store error
func DoDerive(ctx context.Context, cfg *config.Config, options *TokenOptions, attestation string) error {
	if options == nil {
		options = &TokenOptions{}
	}
	record, err := loadRecord(ctx, options)
	if err != nil {
		return err
	}
	client, err := options.client(cfg, record)
	if err != nil {
		return err
	}

	token, err := client.DeriveToken(ctx, record.Token, attestation)
	if err != nil {
		return err
	}
	derived := sdkAuth.NewRecord(token, client.Config())
	derived.ID = strings.TrimSuffix(derived.ID, ".json") + "-derived.json"
	savedPath, err := sdkAuth.GetTokenStore().Save(ctx, derived)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(outOrStdout(options.Out), "Derived token saved to %s\n", savedPath)
	return nil
}

// DoRevoke revokes the stored token. The file is deleted only when the
// provider confirmed the revocation.
//
// Parameters:
//   - ctx: Bounds the token request
//   - cfg: The application configuration
//   - options: Selects the token file
//
// Returns:
//   - error: A provider, transport or store error
func DoRevoke(ctx context.Context, cfg *config.Config, options *TokenOptions) error {
	if options == nil {
		options = &TokenOptions{}
	}
	record, err := loadRecord(ctx, options)
	if err != nil {
		return err
	}
	client, err := options.client(cfg, record)
	if err != nil {
		return err
	}

	if err = client.DeleteToken(ctx, record.Token); err != nil {
		if transportErr, ok := errors.AsType[*infomaniak.TransportError](err); ok && transportErr.Indeterminate() {
			log.Warnf("revocation of %s is unconfirmed; keeping the token file", record.ID)
		}
		return err
	}
	if err = sdkAuth.GetTokenStore().Delete(ctx, record.ID); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(outOrStdout(options.Out), "Token revoked, %s deleted\n", record.ID)
	return nil
}

// DoAccessToken prints a usable access token, refreshing and saving the
// stored token first when it is about to expire.
//
// Parameters:
//   - ctx: Bounds the refresh request
//   - cfg: The application configuration
//   - options: Selects the token file
//
// Returns:
//   - error: ErrNoRefreshToken for an expired token that cannot be refreshed
func DoAccessToken(ctx context.Context, cfg *config.Config, options *TokenOptions) error {
	if options == nil {
		options = &TokenOptions{}
	}
	record, err := loadRecord(ctx, options)
	if err != nil {
		return err
	}
	client, err := options.client(cfg, record)
	if err != nil {
		return err
	}

	lead := *sdkAuth.NewInfomaniakAuthenticator().RefreshLead()
	source, err := sdkAuth.NewTokenSource(client, record, sdkAuth.GetTokenStore(), lead)
	if err != nil {
		return err
	}
	token, err := source.TokenContext(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(outOrStdout(options.Out), token.AccessToken)
	return nil
}

// DoShow prints the stored token with its secrets truncated.
func DoShow(ctx context.Context, options *TokenOptions) error {
	if options == nil {
		options = &TokenOptions{}
	}
	record, err := loadRecord(ctx, options)
	if err != nil {
		return err
	}
	out := outOrStdout(options.Out)
	token := record.Token

	_, _ = fmt.Fprintf(out, "File:          %s\n", record.Path)
	_, _ = fmt.Fprintf(out, "User:          %d\n", token.UserID)
	_, _ = fmt.Fprintf(out, "Client:        %s\n", record.ClientID)
	_, _ = fmt.Fprintf(out, "Access type:   %s\n", record.AccessType)
	_, _ = fmt.Fprintf(out, "Scope:         %s\n", token.Scope)
	_, _ = fmt.Fprintf(out, "Access token:  %s\n", token.TruncatedAccessToken())
	if token.HasRefreshToken() {
		_, _ = fmt.Fprintf(out, "Refresh token: %s\n", token.TruncatedRefreshToken())
	}
	switch {
	case token.ExpirationDate == nil:
		_, _ = fmt.Fprintln(out, "Expires:       never")
	case token.Expired(time.Now()):
		_, _ = fmt.Fprintf(out, "Expires:       %s (expired)\n", token.ExpirationDate.Format(time.RFC3339))
	default:
		_, _ = fmt.Fprintf(out, "Expires:       %s\n", token.ExpirationDate.Format(time.RFC3339))
	}
	return nil
}
