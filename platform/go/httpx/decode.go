package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
)

const maxBodyBytes = 1 << 20

var (
	validate   = validator.New()
	translator ut.Translator
)

func init() {
	english := en.New()
	uni := ut.New(english, english)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// DecodeJSON reads a JSON body into dst and runs struct validation on it.
// Unknown fields are rejected. Failures are returned as domainerr validation errors.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return domainerr.Invalid("body", "request body is required")
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domainerr.Invalid("body", "request body is required")
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return domainerr.Invalid(typeErr.Field, fmt.Sprintf("must be a %s", typeErr.Type))
		}
		return domainerr.Invalid("body", fmt.Sprintf("malformed JSON: %v", err))
	}

	return Validate(dst)
}

// Validate runs go-playground validation tags on v.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fields := domainerr.FieldErrors{}
	for _, fe := range verrs {
		name := fieldPath(fe)
		fields.Add(name, fe.Translate(translator))
	}
	return fields.Err()
}

// fieldPath strips the root struct name from the namespace, e.g. "createInput.items[0].amount".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}
