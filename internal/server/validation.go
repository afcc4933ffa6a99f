package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type lifecycleRequest struct {
	State string `json:"state" validate:"required,oneof=active background"`
}

type sessionRequest struct {
	Token string `json:"token" validate:"required"`
}

// modalRequest is the body of PUT /modal and PUT /voting-view.
type modalRequest struct {
	Open *bool `json:"open" validate:"required"`
}

type draftBody struct {
	Text string `json:"text" validate:"max=4000"`
}

// decode reads a JSON body into v and validates its tags. An empty body is
// allowed when optional is set.
func decode(r *http.Request, v any, optional bool) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			return errors.New("invalid JSON body")
		}
	}
	if err := validate.Struct(v); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, formatFieldError(e))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(e.Field())

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
