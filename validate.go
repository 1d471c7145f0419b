package identity

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// SignUpRequest is the payload for credential creation.
type SignUpRequest struct {
	Email       string           `form:"email" json:"email"`
	Password    string           `form:"password" json:"password"`
	DisplayName string           `form:"display_name" json:"display_name"`
	Phone       string           `form:"phone_number" json:"phone_number"`
	Env         EnvironmentHints `form:"-" json:"-"`
}

// Validate will run validation rules
func (r SignUpRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(&r.DisplayName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Phone, validation.By(ValidPhoneNumber("US"))),
	)
}

// SignInRequest is the payload for credential verification.
type SignInRequest struct {
	Email    string           `form:"email" json:"email"`
	Password string           `form:"password" json:"password"`
	Env      EnvironmentHints `form:"-" json:"-"`
}

// Validate will run validation rules
func (r SignInRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// ValidPhoneNumber validates an optional phone field against the given
// default region.
func ValidPhoneNumber(region string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}

		num, err := phonenumbers.Parse(s, region)
		if err != nil {
			return err
		}

		if !phonenumbers.IsValidNumber(num) {
			return errors.New("must be a valid phone number")
		}

		return nil
	}
}

// FormatValidationErrorToMap flattens an ozzo validation error into a
// field->message map for view rendering.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["error"] = err.Error()
	return out
}
