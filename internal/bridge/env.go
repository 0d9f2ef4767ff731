// ABOUTME: Environment credential loading shared by the bridge and stdio mode.

package bridge

import "os"

// Environment variable names for credentials, read once at process start.
const (
	EnvUserEmail       = "FORTUNAMIND_USER_EMAIL"
	EnvSubscriptionKey = "FORTUNAMIND_SUBSCRIPTION_KEY"
	EnvUpstreamKey     = "FORTUNAMIND_UPSTREAM_API_KEY"
	EnvUpstreamSecret  = "FORTUNAMIND_UPSTREAM_API_SECRET"
)

// CredentialsFromEnv reads the credential set from the environment.
// Callers decide whether missing values are fatal.
func CredentialsFromEnv() Credentials {
	return Credentials{
		Email:             os.Getenv(EnvUserEmail),
		SubscriptionKey:   os.Getenv(EnvSubscriptionKey),
		UpstreamAPIKey:    os.Getenv(EnvUpstreamKey),
		UpstreamAPISecret: os.Getenv(EnvUpstreamSecret),
	}
}
