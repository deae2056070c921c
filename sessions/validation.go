package sessions

import (
	"strings"

	storeerrors "github.com/jrsteele09/go-storefront/internal/errors"
)

const minPasswordLength = 8

// Validate performs the client-side registration checks.
func (r RegisterRequest) Validate() error {
	for _, v := range []string{r.Username, r.Password, r.Email, r.FirstName, r.LastName, r.BankAccountID} {
		if strings.TrimSpace(v) == "" {
			return storeerrors.Display(storeerrors.ErrValidation, "Complete all fields to create your account.")
		}
	}
	if len(r.Password) < minPasswordLength {
		return storeerrors.Display(storeerrors.ErrValidation, "Password must be at least 8 characters long.")
	}
	return nil
}

func (r LoginRequest) Validate() error {
	if r.Username == "" || r.Password == "" {
		return storeerrors.Display(storeerrors.ErrValidation, "Enter your username and password.")
	}
	return nil
}
