package awsauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMethodPrecedence(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
		want  Method
	}{
		{"static keys", Credentials{AccessKeyID: "AKIA", SecretAccessKey: "secret"}, MethodStatic},
		{"session token", Credentials{AccessKeyID: "ASIA", SecretAccessKey: "secret", SessionToken: "token"}, MethodSession},
		{"static keys beat profile", Credentials{AccessKeyID: "AKIA", SecretAccessKey: "secret", Profile: "prod"}, MethodStatic},
		{"profile", Credentials{Profile: "prod"}, MethodProfile},
		{"profile beats role", Credentials{Profile: "prod", RoleARN: "arn:aws:iam::123:role/r"}, MethodProfile},
		{"role", Credentials{RoleARN: "arn:aws:iam::123:role/r"}, MethodRole},
		{"role with external id", Credentials{RoleARN: "arn:aws:iam::123:role/r", ExternalID: "ext"}, MethodRole},
		{"ambient", Credentials{}, MethodAmbient},
		{"key without secret falls through", Credentials{AccessKeyID: "AKIA"}, MethodAmbient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.creds.Method())
		})
	}
}

func TestFingerprint(t *testing.T) {
	a := Credentials{AccessKeyID: "AKIA", SecretAccessKey: "secret"}
	b := Credentials{AccessKeyID: "AKIA", SecretAccessKey: "secret"}
	c := Credentials{AccessKeyID: "AKIA", SecretAccessKey: "other"}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())

	// fingerprint is a digest, not the secret
	assert.NotContains(t, a.Fingerprint(), "secret")
	assert.Len(t, a.Fingerprint(), 64)
}

func TestFingerprintFieldBoundaries(t *testing.T) {
	// concatenation must not collide across field boundaries
	a := Credentials{Profile: "ab"}
	b := Credentials{AccessKeyID: "ab"}
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestStringRedactsSecrets(t *testing.T) {
	c := Credentials{AccessKeyID: "AKIAEXAMPLE", SecretAccessKey: "supersecret", SessionToken: "tok"}
	s := c.String()
	assert.NotContains(t, s, "AKIAEXAMPLE")
	assert.NotContains(t, s, "supersecret")
	assert.NotContains(t, s, "tok")
	assert.Contains(t, s, "session")
}

func TestExpiresWithin(t *testing.T) {
	assert.False(t, Credentials{}.ExpiresWithin(time.Hour))

	soon := Credentials{Expiration: time.Now().Add(5 * time.Minute)}
	assert.True(t, soon.ExpiresWithin(15*time.Minute))
	assert.False(t, soon.ExpiresWithin(time.Minute))

	expired := Credentials{Expiration: time.Now().Add(-time.Minute)}
	assert.True(t, expired.ExpiresWithin(15*time.Minute))
}
