package shared

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sitdb/sitdb/internal/platform/httpx"
)

// Validator wraps go-playground/validator with JSON field names and
// Indonesian messages.
type Validator struct {
	v *validator.Validate
}

// NewValidator builds a Validator. Extra custom tags can be registered by the
// feature packages through Register.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return &Validator{v: v}
}

// Register adds a custom validation tag.
func (v *Validator) Register(tag string, fn validator.Func) {
	if err := v.v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("shared: register validation %q: %v", tag, err))
	}
}

// Struct validates s and returns an *httpx.ValidationError whose message is
// the first violation.
func (v *Validator) Struct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &httpx.ValidationError{Fields: make(map[string]string, len(verrs))}
	for i, fe := range verrs {
		msg := message(fe)
		if i == 0 {
			out.Message = msg
		}
		if _, exists := out.Fields[fe.Field()]; !exists {
			out.Fields[fe.Field()] = msg
		}
	}
	return out
}

// fieldLabels maps JSON field names to the labels shown to users.
var fieldLabels = map[string]string{
	"address":     "Alamat",
	"contentType": "Tipe file",
	"description": "Deskripsi",
	"email":       "Email",
	"filename":    "Nama file",
	"lat":         "Latitude",
	"latitude":    "Latitude",
	"limit":       "Limit",
	"lng":         "Longitude",
	"longitude":   "Longitude",
	"name":        "Nama",
	"notes":       "Catatan",
	"page":        "Halaman",
	"password":    "Password",
	"phone":       "Nomor telepon",
	"radius":      "Radius",
	"role":        "Role",
	"search":      "Pencarian",
	"severity":    "Tingkat keparahan",
	"sizeBytes":   "Ukuran file",
	"sortBy":      "Urutan",
	"sortOrder":   "Arah urutan",
	"status":      "Status",
	"title":       "Judul",
	"type":        "Jenis",
	"url":         "URL",
	"userId":      "User ID",
}

// FieldLabel returns the display label for a JSON field name.
func FieldLabel(field string) string {
	if label, ok := fieldLabels[field]; ok {
		return label
	}
	return field
}

func message(fe validator.FieldError) string {
	field := FieldLabel(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s wajib diisi", field)
	case "email":
		return "Email tidak valid"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s minimal %s karakter", field, fe.Param())
		}
		return fmt.Sprintf("%s minimal %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s maksimal %s karakter", field, fe.Param())
		}
		return fmt.Sprintf("%s maksimal %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s minimal %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s maksimal %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s harus salah satu dari: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "url":
		return fmt.Sprintf("%s harus berupa URL", field)
	default:
		return fmt.Sprintf("%s tidak valid", field)
	}
}
