package infomaniak

import "fmt"

// PKCECodes holds the PKCE state of a single authorization attempt.
type PKCECodes struct {
	// CodeVerifier is the secret random string sent only to the token endpoint.
	CodeVerifier string `json:"code_verifier"`
	// CodeChallenge is the SHA256 hash of the code verifier, base64url-encoded.
	CodeChallenge string `json:"code_challenge"`
	// CodeChallengeMethod identifies the hash, always HashModeShort.
	CodeChallengeMethod string `json:"code_challenge_method"`
}

// String keeps the verifier out of logs and formatted errors.
func (p *PKCECodes) String() string {
	if p == nil {
		return "<nil>"
	}
	return fmt.Sprintf("PKCECodes{challenge=%s method=%s verifier=[redacted]}", p.CodeChallenge, p.CodeChallengeMethod)
}

// LoginResult is the outcome of a successful interactive login: the authorization
// code together with the verifier of the attempt that produced it.
type LoginResult struct {
	Code         string
	CodeVerifier string
}

// String keeps the verifier and the code out of logs.
func (r LoginResult) String() string {
	return fmt.Sprintf("LoginResult{code=%s}", truncateToken(r.Code))
}
