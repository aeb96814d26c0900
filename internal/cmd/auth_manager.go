package cmd

import (
	sdkAuth "github.com/Infomaniak/infomaniak-login-go/sdk/auth"
)

// newAuthManager creates an authentication manager backed by the registered
// token store, with the Infomaniak authenticator.
//
// Returns:
//   - *sdkAuth.Manager: A configured authentication manager instance
func newAuthManager() *sdkAuth.Manager {
	store := sdkAuth.GetTokenStore()
	return sdkAuth.NewManager(store, sdkAuth.NewInfomaniakAuthenticator())
}
