package sessions

// Identity is the signed-in user's profile as known to the client.
type Identity struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// State is the persisted session record: the identity and its bearer
// credential. Both are set together and cleared together.
type State struct {
	User  *Identity `json:"user"`
	Token string    `json:"token"`
}

// Authenticated reports whether both an identity and a credential are present.
func (s State) Authenticated() bool {
	return s.User != nil && s.Token != ""
}

// Username returns the identity's username, or "" when signed out.
func (s State) Username() string {
	if s.User == nil {
		return ""
	}
	return s.User.Username
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned by POST /api/auth/login.
type LoginResponse struct {
	UserID      int64  `json:"userId"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	AccessToken string `json:"accessToken"`
	Message     string `json:"message"`
}

// RegisterRequest is the body of POST /api/auth/register. Every field is required.
type RegisterRequest struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	Email         string `json:"email"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	BankAccountID string `json:"bankAccountId"`
}

// RegisterResponse is returned by POST /api/auth/register.
type RegisterResponse struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Message  string `json:"message"`
}
