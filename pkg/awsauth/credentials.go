package awsauth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Credentials is one credential bundle. Zero value means the ambient default
// chain (environment, shared config, instance role).
type Credentials struct {
	// Static keys. SessionToken is optional and turns the pair into
	// session credentials.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// Named profile from the shared AWS config files.
	Profile string

	// Role assumption. ExternalID is optional.
	RoleARN    string
	ExternalID string

	// Known expiration of session credentials, if any. Zero means unknown
	// or non-expiring.
	Expiration time.Time
}

// Method names the resolution path a bundle selects.
type Method string

const (
	MethodStatic  Method = "static"
	MethodSession Method = "session"
	MethodProfile Method = "profile"
	MethodRole    Method = "role"
	MethodAmbient Method = "ambient"
)

// Method reports which resolution path this bundle selects, following the
// fixed precedence: static keys, then profile, then role, then ambient.
func (c Credentials) Method() Method {
	switch {
	case c.AccessKeyID != "" && c.SecretAccessKey != "":
		if c.SessionToken != "" {
			return MethodSession
		}
		return MethodStatic
	case c.Profile != "":
		return MethodProfile
	case c.RoleARN != "":
		return MethodRole
	default:
		return MethodAmbient
	}
}

// Fingerprint returns a stable cache key for the bundle. It is a SHA-256
// digest so secret material never leaves this package through the key.
func (c Credentials) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%s\x00%s",
		c.AccessKeyID, c.SecretAccessKey, c.SessionToken,
		c.Profile, c.RoleARN, c.ExternalID)
	return hex.EncodeToString(h.Sum(nil))
}

// ExpiresWithin reports whether the bundle has a known expiration inside the
// given horizon.
func (c Credentials) ExpiresWithin(d time.Duration) bool {
	if c.Expiration.IsZero() {
		return false
	}
	return time.Until(c.Expiration) <= d
}

// String implements fmt.Stringer without exposing secrets.
func (c Credentials) String() string {
	return fmt.Sprintf("awsauth.Credentials{method=%s}", c.Method())
}
