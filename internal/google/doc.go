// Package google manages the Gmail OAuth credential of inboxtriage.
//
// A FileTokenStore reads and writes the on-disk token record and the OAuth
// client descriptor. A TokenRefresher hands out access tokens, exchanging
// the stored refresh token when the current one is missing or about to
// expire. The installed-app authorization flow that creates the token file
// in the first place lives in oauth.go.
package google
