package sasl

// Login state constants
const (
	loginStateUsername = iota
	loginStatePassword
	loginStateDone
)

// Login implements the LOGIN SASL mechanism.
// Obsolete; prefer PLAIN whenever the server offers it. Some
// submission services still advertise nothing else.
type Login struct {
	Username string
	Password string
	state    int
}

// NewLogin creates a LOGIN mechanism for the given credentials.
func NewLogin(username, password string) *Login {
	return &Login{Username: username, Password: password}
}

// Name returns "LOGIN".
func (l *Login) Name() string {
	return "LOGIN"
}

// Start returns no initial response; LOGIN waits for the server's
// first challenge.
func (l *Login) Start() ([]byte, error) {
	l.state = loginStateUsername
	return nil, nil
}

// Next answers the username to the first challenge and the password to
// the second. Challenge text is ignored: servers vary between
// "Username:", "User Name" and other prompts.
func (l *Login) Next(challenge []byte) ([]byte, error) {
	switch l.state {
	case loginStateUsername:
		l.state = loginStatePassword
		return []byte(l.Username), nil
	case loginStatePassword:
		l.state = loginStateDone
		return []byte(l.Password), nil
	default:
		return nil, ErrUnexpectedChallenge
	}
}
