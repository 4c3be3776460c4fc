package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// requests checks the shape of decoded request bodies. Domain rules such as
// delta signs per movement kind live in the inventory package.
var requests = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	return v
}

// jsonFieldName reports fields by the name clients send.
func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}

// fieldProblems maps each rejected json field to what is wrong with it.
func fieldProblems(err error) map[string]string {
	problems := make(map[string]string)
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			problems[fe.Field()] = describe(fe)
		}
	}
	return problems
}

// describe words a field error the way inventory.ValidationError does.
func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("at most %s characters", fe.Param())
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gt":
		if fe.Param() == "0" {
			return "must be positive"
		}
		return "must be above " + fe.Param()
	case "gte":
		if fe.Param() == "0" {
			return "must not be negative"
		}
		return "must be at least " + fe.Param()
	}
	return "fails " + fe.Tag()
}

// decodeRequest reads a JSON body into T. Unknown fields and bad JSON are a
// 400, shape errors a 422 listing every offending field. On failure the
// response is already written.
func decodeRequest[T any](w http.ResponseWriter, r *http.Request) (*T, bool) {
	var req T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body is not valid JSON for this endpoint", "invalid_json", err.Error())
		return nil, false
	}
	if err := requests.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "request has invalid fields", "validation_failed", fieldProblems(err))
		return nil, false
	}
	return &req, true
}
