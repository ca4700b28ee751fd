package blob

import (
	"errors"
	"testing"
)

func TestCanonicalizeLegacyPrefixes(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"reports/abc/photo.jpg", "reports/abc/photo.jpg"},
		{"public/reports/abc/photo.jpg", "reports/abc/photo.jpg"},
		{"/siteworks-prod/public/reports/abc/photo.jpg", "reports/abc/photo.jpg"},
		{"/old-bucket/public/logos/client.png", "logos/client.png"},
		{"storage/reports/abc/photo.jpg", "reports/abc/photo.jpg"},
		{"bunny/reports/abc/photo.jpg", "reports/abc/photo.jpg"},
		{"bunny/public/reports/abc/photo.jpg", "reports/abc/photo.jpg"},
		{"  reports/abc/photo.jpg  ", "reports/abc/photo.jpg"},
	}
	for _, tc := range cases {
		got, err := Canonicalize(tc.in)
		if err != nil {
			t.Fatalf("Canonicalize(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("Canonicalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	key, err := Canonicalize("public/reports/abc/photo.jpg")
	if err != nil {
		t.Fatal(err)
	}
	again, err := Canonicalize(key)
	if err != nil {
		t.Fatal(err)
	}
	if again != key {
		t.Fatalf("second pass changed key: %q -> %q", key, again)
	}
}

func TestCanonicalizeRejectsUnsafe(t *testing.T) {
	cases := []string{
		"",
		"../etc/passwd",
		"reports/../../etc/passwd",
		"public/../secrets.txt",
		"/etc/passwd",
		"/bucket/public/../../etc/passwd",
		"storage/..",
		`reports\..\secret`,
	}
	for _, in := range cases {
		if _, err := Canonicalize(in); !errors.Is(err, ErrUnsafePath) {
			t.Fatalf("Canonicalize(%q): want ErrUnsafePath, got %v", in, err)
		}
	}
}
