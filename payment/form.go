package payment

import (
	"errors"
	"reflect"
	"strings"

	"shop-svc/models"

	"github.com/go-playground/validator/v10"
)

// Form is the payment part of checkout and retry. Method-specific fields are
// required only for their method. Tags use the "binding" key so gin validates
// the form while binding it.
type Form struct {
	Method         string `json:"payment_method" form:"payment_method" binding:"required,oneof=stripe credit_card paypal bank_transfer"`
	CardNumber     string `json:"card_number" form:"card_number" binding:"required_if=Method credit_card,max=19"`
	ExpiryMonth    string `json:"expiry_month" form:"expiry_month" binding:"required_if=Method credit_card,omitempty,oneof=01 02 03 04 05 06 07 08 09 10 11 12"`
	ExpiryYear     string `json:"expiry_year" form:"expiry_year" binding:"required_if=Method credit_card,omitempty,oneof=2025 2026 2027 2028 2029 2030 2031 2032 2033 2034 2035"`
	CVV            string `json:"cvv" form:"cvv" binding:"required_if=Method credit_card,max=4"`
	CardholderName string `json:"cardholder_name" form:"cardholder_name" binding:"required_if=Method credit_card,max=100"`
	PaypalEmail    string `json:"paypal_email" form:"paypal_email" binding:"required_if=Method paypal,omitempty,email"`
	BankAccount    string `json:"bank_account" form:"bank_account" binding:"required_if=Method bank_transfer,max=50"`
	BankName       string `json:"bank_name" form:"bank_name" binding:"required_if=Method bank_transfer,max=100"`
}

func (f Form) PaymentMethod() models.PaymentMethod {
	return models.PaymentMethod(f.Method)
}

var formValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	v.RegisterTagNameFunc(FieldName)
	return v
}

// Validate checks the form outside of gin binding, returning per-field messages.
func (f Form) Validate() map[string]string {
	return FieldErrors(formValidator.Struct(f))
}

// Details extracts what is kept about the payment instrument. Only the last
// four digits of card and account numbers are stored; the CVV never is.
func (f Form) Details() map[string]string {
	switch f.PaymentMethod() {
	case models.PaymentMethodCreditCard:
		return map[string]string{
			"cardholder_name":  f.CardholderName,
			"last_four_digits": lastFour(f.CardNumber),
			"expiry_month":     f.ExpiryMonth,
			"expiry_year":      f.ExpiryYear,
		}
	case models.PaymentMethodPayPal:
		return map[string]string{"paypal_email": f.PaypalEmail}
	case models.PaymentMethodBankTransfer:
		return map[string]string{
			"bank_name":           f.BankName,
			"account_last_digits": lastFour(f.BankAccount),
		}
	default:
		return map[string]string{}
	}
}

func lastFour(s string) string {
	s = strings.ReplaceAll(s, " ", "")
	if len(s) <= 4 {
		return s
	}
	return s[len(s)-4:]
}

// FieldName reports a struct field by its form name, for validator messages.
func FieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
	if name == "" || name == "-" {
		name = strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	}
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}

var methodLabels = map[string]string{
	"credit_card":   "credit card",
	"paypal":        "PayPal",
	"bank_transfer": "bank transfer",
}

// FieldErrors flattens validator errors into field -> message. Errors that
// are not validation errors are reported under "__all__".
func FieldErrors(err error) map[string]string {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"__all__": err.Error()}
	}

	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = message(fe)
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "required_if":
		method := strings.Fields(fe.Param())
		if fe.Field() == "paypal_email" {
			return "PayPal email is required for PayPal payments."
		}
		if len(method) == 2 {
			return "This field is required for " + methodLabels[method[1]] + " payments."
		}
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "oneof":
		return "Select a valid choice."
	case "max":
		return "Ensure this value has at most " + fe.Param() + " characters."
	case "min":
		return "Ensure this value has at least " + fe.Param() + " characters."
	case "eqfield":
		return "The two fields didn't match."
	case "gt", "gte":
		return "Ensure this value is greater than " + orEqual(fe.Tag()) + fe.Param() + "."
	default:
		return "Enter a valid value."
	}
}

func orEqual(tag string) string {
	if tag == "gte" {
		return "or equal to "
	}
	return ""
}
