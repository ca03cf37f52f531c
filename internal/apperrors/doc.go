// Package apperrors defines the error taxonomy shared by the triage pipeline.
//
// Three kinds of failure cross package boundaries:
//   - ConfigurationError: a missing or malformed credential file, client file or
//     model identifier. Never retried; surfaced to the caller as a client error.
//   - AuthError: the token endpoint rejected a refresh or returned no access token.
//     Resolution requires re-authentication out of band.
//   - TransportError: a network or upstream HTTP failure on a Gmail or token call.
//     Carries the upstream status and body when they are known.
//
// Callers classify errors with IsConfiguration, IsAuth and IsTransport, which
// look through wrapped errors.
package apperrors
