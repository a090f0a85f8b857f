// Package google provides the Google API plumbing for the mailbox poller:
// a file-backed OAuth token source, the Gmail service factory, API error
// classification and a rate limiter that respects Gmail quotas.
//
// The token file holds a JSON oauth2.Token with a refresh token, as
// written by filer mailbox authorize or any installed-app OAuth flow. Refreshed tokens are
// written back to the same file.
//
// The poller needs only this scope:
//   - https://www.googleapis.com/auth/gmail.readonly
package google
