package sasl

// Plain implements the PLAIN SASL mechanism (RFC 4616).
// Use only over TLS - passwords are transmitted in clear text.
type Plain struct {
	// Identity is the authorization identity (authzid), normally left
	// empty to act as the authenticated user.
	Identity string
	Username string
	Password string
}

// NewPlain creates a PLAIN mechanism for the given credentials.
func NewPlain(username, password string) *Plain {
	return &Plain{Username: username, Password: password}
}

// Name returns "PLAIN".
func (p *Plain) Name() string {
	return "PLAIN"
}

// Start returns the single PLAIN message: authzid NUL authcid NUL
// passwd, sent as the initial response.
func (p *Plain) Start() ([]byte, error) {
	return []byte(p.Identity + "\x00" + p.Username + "\x00" + p.Password), nil
}

// Next fails: PLAIN is a single message and the server has nothing to
// ask.
func (p *Plain) Next(challenge []byte) ([]byte, error) {
	return nil, ErrUnexpectedChallenge
}
