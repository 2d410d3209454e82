package role

import (
	"testing"

	"github.com/shopqa/authcache/internal/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    Role
		wantErr bool
	}{
		{"standard", Standard, false},
		{"LOCKED_OUT", LockedOut, false},
		{"  problem ", Problem, false},
		{"performance_glitch", PerformanceGlitch, false},
		{"error", Error, false},
		{"visual", Visual, false},
		{"admin", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if tt.wantErr {
				if !errors.Is(err, errors.ErrUnknownRole) {
					t.Errorf("error should wrap ErrUnknownRole: %v", err)
				}
				if !errors.Is(err, errors.ErrInvalidInput) {
					t.Errorf("error should match ErrInvalidInput: %v", err)
				}
			}
		})
	}
}

func TestMustParsePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustParse(unknown) did not panic")
		}
	}()
	MustParse("superuser")
}

func TestNames(t *testing.T) {
	names := Names()
	if len(names) != len(All()) {
		t.Fatalf("Names() returned %d names, want %d", len(names), len(All()))
	}
	for _, n := range names {
		if _, err := Parse(n); err != nil {
			t.Errorf("Parse(%q) failed: %v", n, err)
		}
	}
}

func TestDirectory(t *testing.T) {
	dir := Directory{
		Visual:   {Username: "visual_user", Password: "secret_sauce"},
		Standard: {Username: "standard_user", Password: "secret_sauce"},
	}

	creds, err := dir.Lookup(Standard)
	if err != nil {
		t.Fatalf("Lookup(standard) failed: %v", err)
	}
	if creds.Username != "standard_user" {
		t.Errorf("Username = %q, want standard_user", creds.Username)
	}

	_, err = dir.Lookup(Problem)
	var nf *errors.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Lookup(problem) error = %v, want NotFoundError", err)
	}

	roles := dir.Roles()
	if len(roles) != 2 || roles[0] != Standard || roles[1] != Visual {
		t.Errorf("Roles() = %v, want [standard visual]", roles)
	}
}
