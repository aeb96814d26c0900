package auth

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Infomaniak/infomaniak-login-go/internal/auth/infomaniak"
	"github.com/Infomaniak/infomaniak-login-go/internal/browser"
	"github.com/Infomaniak/infomaniak-login-go/internal/misc"
	"github.com/Infomaniak/infomaniak-login-go/internal/util"
	"github.com/atotto/clipboard"
	log "github.com/sirupsen/logrus"
)

const (
	defaultCallbackTimeout   = 5 * time.Minute
	defaultManualPromptDelay = 15 * time.Second
)

// LoopbackPresenter opens the login page in the system browser and receives the
// redirect on a local callback server. After ManualPromptDelay it also offers
// to paste the callback URL through Prompt.
type LoopbackPresenter struct {
	RedirectURI       string
	Port              int
	NoBrowser         bool
	Prompt            func(prompt string) (string, error)
	Out               io.Writer
	CallbackTimeout   time.Duration
	ManualPromptDelay time.Duration

	// openURL and browserAvailable default to the browser package.
	openURL          func(string) error
	browserAvailable func() bool
}

// Present implements infomaniak.Presenter.
func (p *LoopbackPresenter) Present(ctx context.Context, authorizationURL string) (string, error) {
	server, err := infomaniak.NewOAuthServer(p.RedirectURI, p.Port)
	if err != nil {
		return "", err
	}
	if err = server.Start(); err != nil {
		return "", err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if errStop := server.Stop(stopCtx); errStop != nil {
			log.Warnf("infomaniak oauth server stop error: %v", errStop)
		}
	}()

	out := p.out()
	p.show(out, authorizationURL, server.Port())
	_, _ = fmt.Fprintln(out, "Waiting for Infomaniak authentication callback...")

	callbackCh := make(chan string, 1)
	callbackErrCh := make(chan error, 1)
	waitCtx, cancelWait := context.WithCancel(ctx)
	defer cancelWait()
	go func() {
		callbackURL, errWait := server.WaitForCallback(waitCtx, p.callbackTimeout())
		if errWait != nil {
			callbackErrCh <- errWait
			return
		}
		callbackCh <- callbackURL
	}()

	var manualPromptC <-chan time.Time
	if p.Prompt != nil {
		timer := time.NewTimer(p.manualPromptDelay())
		defer timer.Stop()
		manualPromptC = timer.C
	}

	for {
		select {
		case callbackURL := <-callbackCh:
			return callbackURL, nil
		case err = <-callbackErrCh:
			return "", p.waitError(ctx, err)
		case <-manualPromptC:
			manualPromptC = nil
			select {
			case callbackURL := <-callbackCh:
				return callbackURL, nil
			default:
			}
			callbackURL, done, errPrompt := promptCallback(p.Prompt, p.RedirectURI)
			if errPrompt != nil {
				return "", errPrompt
			}
			if done {
				return callbackURL, nil
			}
		}
	}
}

func (p *LoopbackPresenter) waitError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &infomaniak.NavigationError{Kind: infomaniak.NavigationCancelled, Err: ctx.Err()}
	}
	return err
}

func (p *LoopbackPresenter) show(out io.Writer, authorizationURL string, port int) {
	openURL, available := p.openURL, p.browserAvailable
	if openURL == nil {
		openURL = browser.OpenURL
	}
	if available == nil {
		available = browser.IsAvailable
	}

	if !p.NoBrowser && available() {
		_, _ = fmt.Fprintln(out, "Opening browser for Infomaniak authentication")
		if err := openURL(authorizationURL); err == nil {
			return
		} else {
			log.Warnf("Failed to open browser automatically: %v", err)
		}
	} else if !p.NoBrowser {
		log.Warn("No browser available; please open the URL manually")
	}

	if util.IsSSHSession() {
		util.PrintSSHTunnelInstructions(out, port)
	}
	printAuthorizationURL(out, authorizationURL)
}

func (p *LoopbackPresenter) out() io.Writer {
	if p.Out != nil {
		return p.Out
	}
	return os.Stdout
}

func (p *LoopbackPresenter) callbackTimeout() time.Duration {
	if p.CallbackTimeout > 0 {
		return p.CallbackTimeout
	}
	return defaultCallbackTimeout
}

func (p *LoopbackPresenter) manualPromptDelay() time.Duration {
	if p.ManualPromptDelay > 0 {
		return p.ManualPromptDelay
	}
	return defaultManualPromptDelay
}

// PromptPresenter shows the authorization URL and reads the callback URL the
// user pastes back. It serves redirect URIs that no local server can receive,
// such as custom app schemes.
type PromptPresenter struct {
	RedirectURI string
	Prompt      func(prompt string) (string, error)
	Out         io.Writer
	NoBrowser   bool

	openURL func(string) error
}

// Present implements infomaniak.Presenter.
func (p *PromptPresenter) Present(ctx context.Context, authorizationURL string) (string, error) {
	if p.Prompt == nil {
		return "", fmt.Errorf("infomaniak login: redirect uri %s needs a prompt to read the callback", p.RedirectURI)
	}
	out := p.Out
	if out == nil {
		out = os.Stdout
	}
	if !p.NoBrowser {
		openURL := p.openURL
		if openURL == nil {
			openURL = browser.OpenURL
		}
		if err := openURL(authorizationURL); err != nil {
			log.Warnf("Failed to open browser automatically: %v", err)
		}
	}
	printAuthorizationURL(out, authorizationURL)

	for {
		if err := ctx.Err(); err != nil {
			return "", &infomaniak.NavigationError{Kind: infomaniak.NavigationCancelled, Err: err}
		}
		callbackURL, done, err := promptCallback(p.Prompt, p.RedirectURI)
		if err != nil {
			return "", err
		}
		if done {
			return callbackURL, nil
		}
	}
}

// promptCallback asks for a pasted callback. done is false when the user just
// pressed Enter.
func promptCallback(prompt func(string) (string, error), redirectURI string) (string, bool, error) {
	input, err := prompt("Paste the Infomaniak callback URL (or press Enter to keep waiting): ")
	if err != nil {
		return "", false, err
	}
	callbackURL, err := misc.NormalizeCallbackInput(input, redirectURI)
	if err != nil {
		return "", false, err
	}
	return callbackURL, callbackURL != "", nil
}

func printAuthorizationURL(out io.Writer, authorizationURL string) {
	_, _ = fmt.Fprintf(out, "Visit the following URL to continue authentication:\n%s\n", authorizationURL)
	if err := clipboard.WriteAll(authorizationURL); err != nil {
		log.Debugf("clipboard unavailable: %v", err)
		return
	}
	_, _ = fmt.Fprintln(out, "(The URL has been copied to your clipboard.)")
}
