package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/festreg/internal/model"
	"github.com/Shivanand-hulikatti/festreg/internal/pricing"
)

func validForm() Form {
	return Form{
		Name:        "Riya Sen",
		College:     "FIEM",
		Email:       "riya@example.com",
		Phone:       "9876543210",
		EventIDs:    []string{"e1"},
		PaymentMode: model.PaymentCash,
	}
}

func TestValidate_OK(t *testing.T) {
	require.Nil(t, Validate(validForm(), pricing.Quote{Subtotal: 100, Payable: 100}))
}

func TestValidate_Fields(t *testing.T) {
	paid := pricing.Quote{Subtotal: 100, Payable: 100}

	tests := []struct {
		name  string
		edit  func(f *Form)
		quote pricing.Quote
		field string
		msg   string
	}{
		{"blank name", func(f *Form) { f.Name = "  " }, paid, "name", msgName},
		{"no college", func(f *Form) { f.College = "" }, paid, "college", msgCollege},
		{"other without name", func(f *Form) { f.College = OtherCollege }, paid, "other_college", msgOtherCollege},
		{"email without domain dot", func(f *Form) { f.Email = "riya@example" }, paid, "email", msgEmail},
		{"email with display name", func(f *Form) { f.Email = "Riya <riya@example.com>" }, paid, "email", msgEmail},
		{"email trailing dot", func(f *Form) { f.Email = "riya@example." }, paid, "email", msgEmail},
		{"short phone", func(f *Form) { f.Phone = "98765" }, paid, "phone", msgPhone},
		{"phone with letters", func(f *Form) { f.Phone = "98765abcde" }, paid, "phone", msgPhone},
		{"phone with country code", func(f *Form) { f.Phone = "+919876543210" }, paid, "phone", msgPhone},
		{"no events", func(f *Form) { f.EventIDs = nil }, pricing.Quote{}, "events", msgEvents},
		{"zero payable", func(f *Form) {}, pricing.Quote{}, "events", msgPayable},
		{"negative payable", func(f *Form) {}, pricing.Quote{Subtotal: 9, Payable: -1}, "events", msgPayable},
		{"unknown mode", func(f *Form) { f.PaymentMode = "CARD" }, paid, "payment_mode", msgPaymentMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validForm()
			tt.edit(&f)
			errs := Validate(f, tt.quote)
			require.Len(t, errs, 1, "%v", errs)
			require.Equal(t, tt.msg, errs[tt.field])
		})
	}
}

func TestForm_CollegeName(t *testing.T) {
	f := Form{College: "FIT", OtherCollege: "ignored"}
	require.Equal(t, "FIT", f.CollegeName())

	f = Form{College: OtherCollege, OtherCollege: "  Jadavpur University "}
	require.Equal(t, "Jadavpur University", f.CollegeName())
}
