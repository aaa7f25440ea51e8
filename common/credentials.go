package common

// Credentials carries the secrets used when authenticating against a remote host.
type Credentials struct {
	User          string
	Password      string
	KeyPassphrase string
}
