package domain

import (
	"html"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

var (
	validate   = validator.New()
	textPolicy = bluemonday.StrictPolicy()
)

type CustomerDetails struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// Sanitized trims every field and strips markup. Customer text ends up in
// the back office sale summary.
func (d CustomerDetails) Sanitized() CustomerDetails {
	return CustomerDetails{
		Name:    cleanText(d.Name),
		Phone:   cleanText(d.Phone),
		Email:   strings.TrimSpace(d.Email),
		Address: cleanText(d.Address),
		Notes:   cleanText(d.Notes),
	}
}

func (d CustomerDetails) Complete() bool {
	return d.Name != "" && d.Phone != ""
}

// ValidEmail reports whether email is a syntactically valid address.
func ValidEmail(email string) bool {
	return validate.Var(strings.TrimSpace(email), "required,email") == nil
}

func cleanText(s string) string {
	s = html.UnescapeString(textPolicy.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}
