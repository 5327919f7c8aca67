package hostname

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "already normalized", raw: "myhost", want: "myhost"},
		{name: "uppercase and punctuation", raw: "My_Host!!", want: "myhost"},
		{name: "leading and trailing hyphens", raw: "-leading-and-trailing-", want: "leadingandtrailing"},
		{name: "interior hyphen kept", raw: "docker-host-01", want: "docker-host-01"},
		{name: "spaces stripped", raw: "my host", want: "myhost"},
		{name: "unicode stripped", raw: "héllo", want: "hllo"},
		{name: "digits only", raw: "42", want: "42"},
		{name: "empty", raw: "", wantErr: true},
		{name: "only invalid characters", raw: "___!!!", wantErr: true},
		{name: "only hyphens", raw: "----", wantErr: true},
		{name: "seventy characters", raw: strings.Repeat("a", 70), wantErr: true},
		{name: "sixty-three characters", raw: strings.Repeat("a", 63), want: strings.Repeat("a", 63)},
		{name: "over-length after stripping", raw: "-" + strings.Repeat("a", 64) + "-", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidHostname) {
					t.Fatalf("Normalize(%q) error = %v, want ErrInvalidHostname", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%q) error = %v", tt.raw, err)
			}
			if string(got) != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"My_Host!!",
		"-leading-and-trailing-",
		"docker-host-01",
		"ALLCAPS",
		"a-b-c",
		"x",
		strings.Repeat("ab-", 20),
	}
	for _, raw := range inputs {
		once, err := Normalize(raw)
		if err != nil {
			t.Fatalf("Normalize(%q) error = %v", raw, err)
		}
		twice, err := Normalize(string(once))
		if err != nil {
			t.Fatalf("Normalize(Normalize(%q)) error = %v", raw, err)
		}
		if once != twice {
			t.Fatalf("Normalize not idempotent for %q: %q != %q", raw, once, twice)
		}
	}
}

func TestNormalizeFixpointOnValid(t *testing.T) {
	valid := []string{"a", "host", "host-1", "0- wait", "web01"}
	for _, h := range valid {
		normalized, err := Normalize(h)
		if err != nil {
			t.Fatalf("Normalize(%q) error = %v", h, err)
		}
		again, err := Normalize(string(normalized))
		if err != nil {
			t.Fatalf("Normalize(%q) error = %v", normalized, err)
		}
		if normalized != again {
			t.Fatalf("Normalize(%q): fixpoint violated: %q != %q", h, normalized, again)
		}
	}
}

func TestValidatedValidate(t *testing.T) {
	v, err := Normalize("myhost")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if err := v.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if err := Validated("My-Host").Validate(); !errors.Is(err, ErrInvalidHostname) {
		t.Fatalf("Validate(non-normalized) error = %v, want ErrInvalidHostname", err)
	}
	if err := Validated("").Validate(); !errors.Is(err, ErrInvalidHostname) {
		t.Fatalf("Validate(empty) error = %v, want ErrInvalidHostname", err)
	}
}
