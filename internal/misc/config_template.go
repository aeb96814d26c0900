package misc

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// ConfigTemplate is written by WriteConfigTemplate.
const ConfigTemplate = `# OAuth client identifier issued by Infomaniak (or INFOMANIAK_CLIENT_ID).
client-id: ""

# Login server base URL. Use a preprod host for testing.
login-url: "https://login.infomaniak.com/"

# Redirect URI registered for the client. Defaults to http://localhost:<callback-port>/oauth2redirect.
redirect-uri: ""
callback-port: 54546

# "offline" requests a refresh token, "none" a non-expiring access token.
access-type: "offline"

hide-create-account: false

# Directory holding token files.
auth-dir: "~/.infomaniak-login"

# Outbound HTTP settings.
proxy-url: ""
tls-fingerprint: ""
request-timeout: 30

debug: false
logging-to-file: false
logs-max-total-size-mb: 0
`

// WriteConfigTemplate writes ConfigTemplate to dst. An existing file is kept
// unless overwrite is set.
func WriteConfigTemplate(dst string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(dst); err == nil {
			return fmt.Errorf("config file %s already exists", dst)
		}
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer func() {
		if errClose := out.Close(); errClose != nil {
			log.WithError(errClose).Warn("failed to close config file")
		}
	}()

	if _, err = out.WriteString(ConfigTemplate); err != nil {
		return err
	}
	return out.Sync()
}
