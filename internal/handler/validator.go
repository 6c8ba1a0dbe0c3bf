package handler

import (
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cafeteria-prebooking/internal/paywindow"
)

// Validator adapts validator/v10 to echo.Validator.  Besides the built-in
// tags it knows "clock", a wall-clock time in HH:MM or HH:MM:SS.
type Validator struct {
	v *validator.Validate
}

// NewValidator returns the validator installed on the echo instance.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := paywindow.Parse(fl.Field().String())
		return err == nil
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// Validate implements echo.Validator.
func (cv *Validator) Validate(i any) error {
	if err := cv.v.Struct(i); err != nil {
		return describe(err)
	}
	return nil
}

// describe flattens validation errors into one readable message.
func describe(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return &validationError{fields: verrs, msg: strings.Join(msgs, "; ")}
}

type validationError struct {
	fields validator.ValidationErrors
	msg    string
}

func (e *validationError) Error() string { return e.msg }

// hasTag reports whether any field failed tag.
func (e *validationError) hasTag(tag string) bool {
	for _, fe := range e.fields {
		if fe.Tag() == tag {
			return true
		}
	}
	return false
}

// bindValid binds the body into req and validates it.  On failure it has
// already written the 400 response and returns false.
func bindValid(c echo.Context, req any) (bool, error) {
	if err := c.Bind(req); err != nil {
		return false, fail(c, http.StatusBadRequest, "bad_request", "invalid request body")
	}
	if err := c.Validate(req); err != nil {
		code := "validation_failed"
		if ve, ok := err.(*validationError); ok && ve.hasTag("clock") {
			code = "invalid_time_format"
		}
		return false, fail(c, http.StatusBadRequest, code, err.Error())
	}
	return true, nil
}
