package geoip

import "testing"

func TestOpenWithoutPath(t *testing.T) {
	r, err := Open("   ")
	if err != nil || r != nil {
		t.Fatalf("Open without a path: resolver=%v err=%v", r, err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("closing a nil resolver: %v", err)
	}
}

func TestCountryCodeRejectsNonAddress(t *testing.T) {
	r := &Resolver{}
	if _, err := r.CountryCode("not-an-ip"); err == nil {
		t.Fatal("expected an error for a non-ip value")
	}
}
