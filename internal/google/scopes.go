package google

import gmail "google.golang.org/api/gmail/v1"

// DefaultOAuthScopes are the scopes requested by the authorization flow.
// Classification only reads mail.
var DefaultOAuthScopes = []string{
	gmail.GmailReadonlyScope,
}
