// Package forms holds the client-side checks run before any request is
// made. Failures are returned as ValidationErrors and never reach the
// network.
package forms

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rcliao/automarket/internal/model"
)

// FieldError is one failed check.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors lists failed checks in form order.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, fe := range v {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// First returns the first message, or "" when there are none.
func (v ValidationErrors) First() string {
	if len(v) == 0 {
		return ""
	}
	return v[0].Message
}

// Field returns the message for field, or "".
func (v ValidationErrors) Field(name string) string {
	for _, fe := range v {
		if fe.Field == name {
			return fe.Message
		}
	}
	return ""
}

func (v *ValidationErrors) add(field, msg string) {
	*v = append(*v, FieldError{Field: field, Message: msg})
}

func (v ValidationErrors) err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

var (
	emailRe    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	passwordRe = regexp.MustCompile(`^[A-Za-z0-9]{8,}$`)
	digitRe    = regexp.MustCompile(`[0-9]`)
)

// Messages shown for failed checks.
const (
	MsgEmailRequired    = "Email is required"
	MsgEmailInvalid     = "Invalid email format"
	MsgPasswordRequired = "Password is required"
	MsgPasswordWeak     = "Password must be at least 8 characters and contain a number"
	MsgFillAllFields    = "Please fill in all fields before registering."
	MsgPasswordMismatch = "Passwords do not match"
)

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool { return emailRe.MatchString(s) }

// ValidPassword reports whether s is at least 8 letters or digits with at
// least one digit.
func ValidPassword(s string) bool {
	return passwordRe.MatchString(s) && digitRe.MatchString(s)
}

// Login is the login form.
type Login struct {
	Email    string
	Password string
}

// Validate checks the login form.
func (f Login) Validate() error {
	var errs ValidationErrors
	checkCredentials(&errs, f.Email, f.Password)
	return errs.err()
}

func checkCredentials(errs *ValidationErrors, email, password string) {
	switch {
	case strings.TrimSpace(email) == "":
		errs.add("email", MsgEmailRequired)
	case !ValidEmail(email):
		errs.add("email", MsgEmailInvalid)
	}
	switch {
	case password == "":
		errs.add("password", MsgPasswordRequired)
	case !ValidPassword(password):
		errs.add("password", MsgPasswordWeak)
	}
}

// Registration is the organisation sign-up form.
type Registration struct {
	OrgName         string
	Email           string
	Website         string
	Password        string
	ConfirmPassword string
	// Document is the path or name of the credibility PDF.
	Document string
}

// Validate checks the registration form: credential rules first, then every
// field must be present and the confirmation must match.
func (f Registration) Validate() error {
	var errs ValidationErrors
	checkCredentials(&errs, f.Email, f.Password)
	if len(errs) > 0 {
		return errs
	}
	for _, v := range []string{f.OrgName, f.Email, f.Website, f.Password, f.ConfirmPassword, f.Document} {
		if strings.TrimSpace(v) == "" {
			errs.add("form", MsgFillAllFields)
			return errs
		}
	}
	if f.Password != f.ConfirmPassword {
		errs.add("confirm_password", MsgPasswordMismatch)
	}
	return errs.err()
}

// Product is the add-product form with raw text inputs.
type Product struct {
	Name        string
	Description string
	Location    string
	Category    string
	Price       string
	Discount    string
}

// Validate checks the form and returns the payload to send.
func (f Product) Validate() (model.NewProduct, error) {
	var errs ValidationErrors
	if strings.TrimSpace(f.Name) == "" {
		errs.add("product_name", "Product name is required")
	}
	if strings.TrimSpace(f.Description) == "" {
		errs.add("product_description", "Description is required")
	}
	if strings.TrimSpace(f.Location) == "" {
		errs.add("location", "Location is required")
	}
	if strings.TrimSpace(f.Category) == "" {
		errs.add("product_category", "Category is required")
	}

	price, err := strconv.ParseFloat(strings.TrimSpace(f.Price), 64)
	if err != nil || price <= 0 {
		errs.add("price", "Enter a valid price")
	}

	var discount float64
	if d := strings.TrimSpace(f.Discount); d != "" {
		discount, err = strconv.ParseFloat(d, 64)
		if err != nil || discount < 0 || discount > 100 {
			errs.add("discount", "Discount must be between 0 and 100")
		}
	}

	if len(errs) > 0 {
		return model.NewProduct{}, errs
	}
	return model.NewProduct{
		Name:        f.Name,
		Description: f.Description,
		Location:    f.Location,
		Category:    f.Category,
		Price:       price,
		Discount:    discount,
	}, nil
}
