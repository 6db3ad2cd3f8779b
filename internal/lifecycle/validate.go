package lifecycle

import (
	"net/mail"
	"strings"

	"github.com/Shivanand-hulikatti/festreg/internal/model"
	"github.com/Shivanand-hulikatti/festreg/internal/pricing"
)

// OtherCollege is the college choice that requires a free-text name.
const OtherCollege = "Other"

// Colleges are the choices offered on the form.
var Colleges = []string{"FIEM", "FIT", OtherCollege}

// Form is what the operator types in before payment.
type Form struct {
	Name         string            `json:"name"`
	College      string            `json:"college"`
	OtherCollege string            `json:"other_college"`
	Email        string            `json:"email"`
	Phone        string            `json:"phone"`
	EventIDs     []string          `json:"event_ids"`
	PaymentMode  model.PaymentMode `json:"payment_mode"`
}

// CollegeName is the college stored on the registration.
func (f Form) CollegeName() string {
	if f.College == OtherCollege {
		return strings.TrimSpace(f.OtherCollege)
	}
	return f.College
}

// Field error messages.
const (
	msgName         = "Name is required"
	msgCollege      = "College name is required"
	msgOtherCollege = "Other college name is required"
	msgEmail        = "Enter a valid email address"
	msgPhone        = "Enter a valid 10-digit phone number"
	msgEvents       = "Select at least one event"
	msgPayable      = "Total must be greater than 0"
	msgPaymentMode  = "Payment mode must be CASH or UPI"
)

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	domain := s[at+1:]
	return at > 0 && strings.Contains(domain, ".") && !strings.HasSuffix(domain, ".")
}

func validPhone(s string) bool {
	if len(s) != 10 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Validate checks a form and the quote of its selection. It returns nil when
// the form may proceed to payment. A selection that costs nothing is rejected
// on the events field.
func Validate(f Form, q pricing.Quote) map[string]string {
	errs := map[string]string{}
	if strings.TrimSpace(f.Name) == "" {
		errs["name"] = msgName
	}
	if f.College == "" {
		errs["college"] = msgCollege
	} else if f.College == OtherCollege && strings.TrimSpace(f.OtherCollege) == "" {
		errs["other_college"] = msgOtherCollege
	}
	if !validEmail(f.Email) {
		errs["email"] = msgEmail
	}
	if !validPhone(f.Phone) {
		errs["phone"] = msgPhone
	}
	if len(f.EventIDs) == 0 {
		errs["events"] = msgEvents
	} else if q.Payable <= 0 {
		errs["events"] = msgPayable
	}
	if f.PaymentMode != "" && !f.PaymentMode.Valid() {
		errs["payment_mode"] = msgPaymentMode
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
