package protocol

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{"1.0", Version{1, 0}, false},
		{"0.9", Version{0, 9}, false},
		{"2.15", Version{2, 15}, false},
		{" 1.0 ", Version{1, 0}, false},
		{"1", Version{}, true},
		{"1.0.0", Version{}, true},
		{"a.b", Version{}, true},
		{"-1.0", Version{}, true},
		{"1.-2", Version{}, true},
		{"", Version{}, true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrMalformedVersion) {
				t.Errorf("Parse(%q) err = %v; want ErrMalformedVersion", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestNegotiate(t *testing.T) {
	srv := Version{Major: 1, Minor: 0}

	if got, err := Negotiate(srv, "1.0"); err != nil || got != (Version{1, 0}) {
		t.Fatalf("Negotiate(1.0) = %v, %v; want 1.0", got, err)
	}
	if got, err := Negotiate(srv, "0.9"); err != nil || got != (Version{0, 9}) {
		t.Fatalf("Negotiate(0.9) = %v, %v; want 0.9", got, err)
	}
	if _, err := Negotiate(srv, "2.0"); err == nil {
		t.Fatalf("Negotiate(2.0) succeeded; want mismatch")
	}

	// Omitted header negotiates exactly like an explicit "1.0".
	got, err := Negotiate(srv, "")
	if err != nil || got != (Version{1, 0}) {
		t.Fatalf("Negotiate(\"\") = %v, %v; want 1.0", got, err)
	}
}

func TestNegotiateMinorRule(t *testing.T) {
	srv := Version{Major: 1, Minor: 2}
	if got, err := Negotiate(srv, "1.1"); err != nil || got != (Version{1, 1}) {
		t.Fatalf("Negotiate(1.1) = %v, %v; want 1.1", got, err)
	}
	_, err := Negotiate(srv, "1.3")
	if err == nil {
		t.Fatalf("Negotiate(1.3) succeeded; want mismatch")
	}
	var me *MismatchError
	if !errors.As(err, &me) {
		t.Fatalf("err = %T; want *MismatchError", err)
	}
	if me.Server != srv || me.Client != (Version{1, 3}) {
		t.Fatalf("mismatch carries %v/%v; want %v/1.3", me.Server, me.Client, srv)
	}
}

func TestNegotiateMalformedDistinctFromMismatch(t *testing.T) {
	_, err := Negotiate(Version{1, 0}, "not-a-version")
	if !errors.Is(err, ErrMalformedVersion) {
		t.Fatalf("err = %v; want ErrMalformedVersion", err)
	}
	var me *MismatchError
	if errors.As(err, &me) {
		t.Fatalf("malformed version reported as mismatch")
	}
}
