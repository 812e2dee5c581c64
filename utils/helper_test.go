package utils

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestProcessValidationErrorsFieldMapping(t *testing.T) {
	type payload struct {
		Email string `validate:"required"`
		Notes string `validate:"max=4"`
	}
	err := validator.New().Struct(payload{Notes: "too long for the tag"})
	if err == nil {
		t.Fatal("expected validation to fail")
	}

	got := ProcessValidationErrors(err)
	if got["Email"] != "required" {
		t.Fatalf(`got["Email"] = %q, want "required"`, got["Email"])
	}
	if got["Notes"] != "max" {
		t.Fatalf(`got["Notes"] = %q, want "max"`, got["Notes"])
	}
}

func TestProcessValidationErrorsNonValidatorError(t *testing.T) {
	// Malformed or empty request bodies reach this helper as plain json/io
	// errors, not validator.ValidationErrors.
	cases := []error{
		errors.New("unexpected EOF"),
		errors.New("invalid character '}' looking for beginning of value"),
	}
	for _, err := range cases {
		got := ProcessValidationErrors(err)
		if got["message"] == "" {
			t.Fatalf("ProcessValidationErrors(%v) returned no message", err)
		}
	}
}
