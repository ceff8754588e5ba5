package utils

import "testing"

func TestMaskSensitiveString(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"short", "*****"},
		{"12345678", "********"},
		{"sk-abcdefghijkl", "sk-a*******ijkl"},
	}
	for _, tc := range cases {
		if got := MaskSensitiveString(tc.in); got != tc.want {
			t.Fatalf("MaskSensitiveString(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestGetLogger_ReturnsSameInstance(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	a := GetLogger()
	b := GetLogger()
	if a == nil || a != b {
		t.Fatalf("GetLogger() should return a single shared logger")
	}
}
