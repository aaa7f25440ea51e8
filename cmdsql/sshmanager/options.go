package sshmanager

type Option func(*Settings)

// WithUser returns an Option that forces the login user for every host.
func WithUser(user string) Option {
	return func(s *Settings) {
		s.User = user
	}
}

// WithPassword returns an Option that enables password authentication.
func WithPassword(password string) Option {
	return func(s *Settings) {
		s.Password = password
	}
}

// WithKeyPassphrase returns an Option that sets the passphrase used to
// decrypt identity files.
func WithKeyPassphrase(keyPassphrase string) Option {
	return func(s *Settings) {
		s.KeyPassphrase = keyPassphrase
	}
}

// WithAgent returns an Option that offers ssh-agent keys as well.
func WithAgent(socket string) Option {
	return func(s *Settings) {
		s.UseAgent = true
		s.AgentSocket = socket
	}
}

// Apply returns a copy of s with opts applied.
func (s Settings) Apply(opts ...Option) Settings {
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
