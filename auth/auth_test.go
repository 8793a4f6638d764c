package auth

import (
	"context"
	"errors"
	"testing"
)

func TestCredentialsComplete(t *testing.T) {
	cases := []struct {
		name  string
		creds Credentials
		want  bool
	}{
		{"form complete", Credentials{Type: TypeForm, Username: "u", Secret: "s"}, true},
		{"basic complete", Credentials{Type: TypeBasic, Username: "u", Secret: "s"}, true},
		{"missing secret", Credentials{Type: TypeForm, Username: "u"}, false},
		{"missing username", Credentials{Type: TypeForm, Secret: "s"}, false},
		{"unknown type", Credentials{Type: "oauth", Username: "u", Secret: "s"}, false},
		{"empty", Credentials{}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.creds.Complete(); got != c.want {
				t.Errorf("Complete() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestAuthenticateSkipsIncompleteCredentials(t *testing.T) {
	a := New(Config{})

	// Incomplete credentials must be skipped before the page is touched,
	// so a nil page is safe here.
	st, err := a.Authenticate(context.Background(), nil, Credentials{Type: TypeForm, Username: "u"})
	if err != nil {
		t.Fatal(err)
	}
	if st != StatusSkipped {
		t.Errorf("status = %v, want skipped", st)
	}
}

func TestAuthenticateBasicHandledPreNavigation(t *testing.T) {
	a := New(Config{})

	st, err := a.Authenticate(context.Background(), nil, Credentials{Type: TypeBasic, Username: "u", Secret: "s"})
	if err != nil {
		t.Fatal(err)
	}
	if st != StatusAuthenticated {
		t.Errorf("status = %v, want authenticated", st)
	}
}

func TestClassify(t *testing.T) {
	a := New(Config{})

	st, err := a.classify(errors.New("cdp connection closed"), "submit")
	if st != StatusBotProtection || !errors.Is(err, ErrBotProtection) {
		t.Errorf("death signal: status %v, err %v", st, err)
	}

	st, err = a.classify(errors.New("element not found"), "fill username")
	if st != StatusFailed || !errors.Is(err, ErrAuthFailed) {
		t.Errorf("ordinary failure: status %v, err %v", st, err)
	}
}
