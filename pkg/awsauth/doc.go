// Package awsauth resolves object-store credentials and hands out cached S3
// clients.
//
// Resolution order, first match wins: static keys (optionally with a session
// token) -> named profile -> role assumption via STS -> the ambient default
// chain. Clients are cached per credential bundle so concurrent callers with
// the same bundle share one client. Secret material never appears in error
// text or log output.
package awsauth
