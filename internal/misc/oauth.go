// Package misc holds small helpers shared by the login commands: callback input
// normalisation, credential logging and the configuration template.
package misc

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeCallbackInput turns text pasted by the user into a full callback URL
// below redirectURI. It accepts a complete URL, a query string with or without
// the leading "?", or a bare authorization code. Parameters found in a fragment
// are merged into the query. Empty input returns "" and no error.
func NormalizeCallbackInput(input, redirectURI string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", nil
	}

	base, err := url.Parse(redirectURI)
	if err != nil || base.Scheme == "" {
		return "", fmt.Errorf("invalid redirect URI %q", redirectURI)
	}

	var query url.Values
	switch {
	case strings.Contains(trimmed, "://"):
		parsed, errParse := url.Parse(trimmed)
		if errParse != nil {
			return "", errParse
		}
		query = parsed.Query()
		if parsed.Fragment != "" {
			if fragQuery, errFrag := url.ParseQuery(parsed.Fragment); errFrag == nil {
				for key, values := range fragQuery {
					if query.Get(key) == "" {
						query[key] = values
					}
				}
			}
		}
	case strings.Contains(trimmed, "="):
		parsed, errParse := url.ParseQuery(strings.TrimPrefix(trimmed, "?"))
		if errParse != nil {
			return "", errParse
		}
		query = parsed
	case strings.ContainsAny(trimmed, " /?#&"):
		return "", fmt.Errorf("invalid callback URL")
	default:
		query = url.Values{"code": {trimmed}}
	}

	callback := *base
	callback.RawQuery = query.Encode()
	callback.Fragment = ""
	return callback.String(), nil
}
