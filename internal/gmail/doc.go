// Package gmail fetches unread messages from the Gmail API and turns them
// into plain-text records ready for classification.
//
// The Fetcher lists message IDs for a label filter, retrieves the full
// payloads concurrently and maps each into a Record. A single failed call
// aborts the whole batch. DecodePayload walks the multipart tree, decodes
// base64url bodies and prefers text/plain over text/html.
//
// Example usage:
//
//	store := google.NewFileTokenStore("token.json", "credentials.json")
//	fetcher := gmail.NewFetcher(google.NewTokenRefresher(store))
//
//	records, err := fetcher.FetchUnread(ctx, 5, nil)
//	if err != nil {
//	    return err
//	}
package gmail
