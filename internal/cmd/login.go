// Package cmd implements the commands of the infomaniak-login binary.
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Infomaniak/infomaniak-login-go/internal/auth/infomaniak"
	"github.com/Infomaniak/infomaniak-login-go/internal/config"
	sdkAuth "github.com/Infomaniak/infomaniak-login-go/sdk/auth"
	log "github.com/sirupsen/logrus"
)

// LoginOptions contains options for the login command.
type LoginOptions struct {
	// NoBrowser indicates whether to skip opening the browser automatically.
	NoBrowser bool

	// CallbackPort overrides the local OAuth callback port when set (>0).
	CallbackPort int

	// HideCreateAccount hides the sign-up button on the login page.
	HideCreateAccount bool

	// Prompt allows the caller to provide interactive input when needed.
	Prompt func(prompt string) (string, error)

	// Out receives user facing output; nil means stdout.
	Out io.Writer
}

// DoInfomaniakLogin triggers the Infomaniak OAuth flow through the shared
// authentication manager and saves the token to the configured auth directory.
//
// Parameters:
//   - ctx: Cancels the login when done
//   - cfg: The application configuration
//   - options: Login options including browser behavior and prompts
//
// Returns:
//   - error: An error if the login or the save failed
func DoInfomaniakLogin(ctx context.Context, cfg *config.Config, options *LoginOptions) error {
	if options == nil {
		options = &LoginOptions{}
	}
	out := outOrStdout(options.Out)

	promptFn := options.Prompt
	if promptFn == nil {
		promptFn = defaultPrompt(os.Stdin, out)
	}

	manager := newAuthManager()
	authOpts := &sdkAuth.LoginOptions{
		NoBrowser:         options.NoBrowser,
		CallbackPort:      options.CallbackPort,
		HideCreateAccount: options.HideCreateAccount,
		Prompt:            promptFn,
		Out:               out,
	}

	record, savedPath, err := manager.Login(ctx, sdkAuth.ProviderInfomaniak, cfg, authOpts)
	if err != nil {
		if authErr, ok := errors.AsType[*infomaniak.AuthenticationError](err); ok {
			log.Error(infomaniak.GetUserFriendlyMessage(authErr))
		}
		return err
	}

	if savedPath != "" {
		_, _ = fmt.Fprintf(out, "Authentication saved to %s\n", savedPath)
	}
	_, _ = fmt.Fprintf(out, "Infomaniak authentication successful for user %d!\n", record.Token.UserID)
	return nil
}

// defaultPrompt reads one line from in. An empty line is a valid answer.
func defaultPrompt(in io.Reader, out io.Writer) func(string) (string, error) {
	reader := bufio.NewReader(in)
	return func(prompt string) (string, error) {
		_, _ = fmt.Fprintln(out)
		_, _ = fmt.Fprint(out, prompt)
		line, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}

func outOrStdout(out io.Writer) io.Writer {
	if out != nil {
		return out
	}
	return os.Stdout
}
