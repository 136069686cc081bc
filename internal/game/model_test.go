package game

import (
	"errors"
	"testing"

	"cafe/internal/money"
)

func TestValidateUsername(t *testing.T) {
	valid := []string{"barista", "Jo_42", "abc"}
	for _, s := range valid {
		if err := ValidateUsername(s); err != nil {
			t.Fatalf("expected username %q to be valid: %v", s, err)
		}
	}

	invalid := []string{"ab", "with space", "émile", "this_name_is_way_too_long_x"}
	for _, s := range invalid {
		if err := ValidateUsername(s); err == nil {
			t.Fatalf("expected username %q to fail", s)
		}
	}
}

func TestSanitizeUsername(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Jane.Doe", want: "jane_doe"},
		{in: "", want: "barista"},
		{in: "x", want: "barista_x"},
		{in: "a_very_long_username_from_somewhere", want: "a_very_long_username_fro"},
	}
	for _, tc := range tests {
		if got := sanitizeUsername(tc.in); got != tc.want {
			t.Fatalf("sanitize(%q) got=%q want=%q", tc.in, got, tc.want)
		}
	}
	if got := usernameFromEmail("Marie.Curie@example.org"); got != "marie_curie" {
		t.Fatalf("got %q", got)
	}
}

func TestValidateProduct(t *testing.T) {
	if err := validateProduct("Café", money.MustParse("1.00"), money.MustParse("1.20")); err != nil {
		t.Fatalf("expected valid product: %v", err)
	}
	cases := []struct {
		name     string
		purchase string
		selling  string
	}{
		{"", "1", "2"},
		{"Latte", "0", "2"},
		{"Latte", "1", "-2"},
		{"Latte", "1.005", "2"},
		{"admin special", "1", "2"},
	}
	for _, c := range cases {
		err := validateProduct(c.name, money.MustParse(c.purchase), money.MustParse(c.selling))
		if !errors.Is(err, ErrInvalidProduct) {
			t.Fatalf("product %+v: expected ErrInvalidProduct, got %v", c, err)
		}
	}
}

func TestProcessingFailedWrapsOnce(t *testing.T) {
	cause := errors.New("disk on fire")
	err := processingFailed(processingFailed(cause))
	if !errors.Is(err, ErrOrderProcessingFailed) || !errors.Is(err, cause) {
		t.Fatalf("expected both sentinel and cause, got %v", err)
	}
	if err.Error() != "order processing failed: disk on fire" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if processingFailed(nil) != nil {
		t.Fatalf("nil should stay nil")
	}
}

func TestParseStatus(t *testing.T) {
	for _, in := range []string{"", "pending", "Completed", " cancelled "} {
		if _, err := ParseStatus(in); err != nil {
			t.Fatalf("status %q: %v", in, err)
		}
	}
	if _, err := ParseStatus("shipped"); err == nil {
		t.Fatalf("expected unknown status to fail")
	}
}

func TestNotFoundErrorsShareKind(t *testing.T) {
	for _, err := range []error{ErrOrderNotFound, ErrProductNotFound, ErrUserNotFound} {
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("%v should match ErrNotFound", err)
		}
	}
	if errors.Is(ErrOrderNotFound, ErrProductNotFound) {
		t.Fatalf("distinct not-found errors must not match each other")
	}
	if got := ErrOrderNotFound.Error(); got != "Order not found" {
		t.Fatalf("message changed: %q", got)
	}
}
