// Package main provides the entry point of infomaniak-login, a command line
// helper that signs in to Infomaniak with OAuth2 and PKCE and manages the
// resulting tokens.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Infomaniak/infomaniak-login-go/internal/auth/infomaniak"
	"github.com/Infomaniak/infomaniak-login-go/internal/buildinfo"
	"github.com/Infomaniak/infomaniak-login-go/internal/cmd"
	"github.com/Infomaniak/infomaniak-login-go/internal/logging"
	"github.com/Infomaniak/infomaniak-login-go/internal/store"
	"github.com/Infomaniak/infomaniak-login-go/internal/util"
	sdkAuth "github.com/Infomaniak/infomaniak-login-go/sdk/auth"
	sdkconfig "github.com/Infomaniak/infomaniak-login-go/sdk/config"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = ""
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		login             bool
		refresh           bool
		derive            bool
		revoke            bool
		show              bool
		accessToken       bool
		initConfig        bool
		noBrowser         bool
		hideCreateAccount bool
		callbackPort      int
		attestation       string
		tokenFile         string
		configPath        string
		showVersion       bool
	)

	flag.BoolVar(&login, "login", false, "Login to Infomaniak using OAuth")
	flag.BoolVar(&refresh, "refresh", false, "Refresh the stored token")
	flag.BoolVar(&derive, "derive", false, "Derive a token bound to -attestation")
	flag.BoolVar(&revoke, "revoke", false, "Revoke the stored token and delete its file")
	flag.BoolVar(&show, "show", false, "Print the stored token with truncated secrets")
	flag.BoolVar(&accessToken, "access-token", false, "Print a valid access token, refreshing it when needed")
	flag.BoolVar(&initConfig, "init-config", false, "Write a configuration template to -config")
	flag.BoolVar(&noBrowser, "no-browser", false, "Don't open browser automatically for OAuth")
	flag.BoolVar(&hideCreateAccount, "hide-create-account", false, "Hide the sign-up button on the login page")
	flag.IntVar(&callbackPort, "callback-port", 0, "Override OAuth callback port")
	flag.StringVar(&attestation, "attestation", "", "Attestation JWT used by -derive")
	flag.StringVar(&tokenFile, "token-file", "", "Token file name in the auth directory, or a path")
	flag.StringVar(&configPath, "config", DefaultConfigPath, "Configure File Path")
	flag.BoolVar(&showVersion, "version", false, "Print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("infomaniak-login Version: %s, Commit: %s, BuiltAt: %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)
		return 0
	}

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		return 1
	}
	if configPath == "" {
		configPath = filepath.Join(wd, "config.yaml")
	}
	if initConfig {
		if err = cmd.DoInitConfig(configPath, false, os.Stdout); err != nil {
			log.Errorf("failed to write configuration template: %v", err)
			return 1
		}
		return 0
	}

	// Load environment variables from .env if present.
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	cfg, err := sdkconfig.LoadConfigOptional(configPath, true)
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		return 1
	}
	if err = logging.ConfigureLogOutput(cfg); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		return 1
	}
	defer logging.Close()
	util.SetLogLevel(cfg)
	log.Debugf("infomaniak-login Version: %s, Commit: %s, BuiltAt: %s", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)

	if resolvedAuthDir, errResolveAuthDir := util.ResolveAuthDir(cfg.AuthDir); errResolveAuthDir != nil {
		log.Errorf("failed to resolve auth directory: %v", errResolveAuthDir)
		return 1
	} else {
		cfg.AuthDir = resolvedAuthDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Register the shared token store once so all commands use the same persistence backend.
	remoteStore, err := store.FromEnv(ctx, os.LookupEnv)
	if err != nil {
		log.Error(err)
		return 1
	}
	if remoteStore != nil {
		sdkAuth.RegisterTokenStore(remoteStore)
		if closer, ok := remoteStore.(io.Closer); ok {
			defer func() { _ = closer.Close() }()
		}
	} else {
		sdkAuth.RegisterTokenStore(sdkAuth.NewFileTokenStore(cfg.AuthDir))
	}

	tokenOpts := &cmd.TokenOptions{TokenFile: tokenFile}
	switch {
	case show:
		err = cmd.DoShow(ctx, tokenOpts)
	case login, refresh, derive, revoke, accessToken:
		if err = cfg.Validate(); err != nil {
			log.Error(err)
			return 2
		}
		switch {
		case login:
			err = cmd.DoInfomaniakLogin(ctx, cfg, &cmd.LoginOptions{
				NoBrowser:         noBrowser,
				CallbackPort:      callbackPort,
				HideCreateAccount: hideCreateAccount,
			})
		case refresh:
			err = cmd.DoRefresh(ctx, cfg, tokenOpts)
		case derive:
			err = cmd.DoDerive(ctx, cfg, tokenOpts, attestation)
		case accessToken:
			err = cmd.DoAccessToken(ctx, cfg, tokenOpts)
		default:
			err = cmd.DoRevoke(ctx, cfg, tokenOpts)
		}
	default:
		flag.Usage()
		return 2
	}

	if err != nil {
		log.WithError(err).Debug("command failed")
		fmt.Fprintln(os.Stderr, infomaniak.GetUserFriendlyMessage(err))
		if errors.Is(err, infomaniak.ErrPortInUse) {
			return infomaniak.ErrPortInUse.Code
		}
		return 1
	}
	return 0
}
