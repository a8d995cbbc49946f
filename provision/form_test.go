package provision

import (
	"strings"
	"testing"
)

func TestDecodeFormValue(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"My+SSID%20Name", "My SSID Name"},
		{"bad%2", "bad%2"},
		{"100%", "100%"},
		{"%zz%41", "%zzA"},
		{"%e2%9C%93", "✓"},
		{"plain", "plain"},
		{"", ""},
		{"a+%2B+b", "a + b"},
	}
	for _, tc := range testCases {
		if got := DecodeFormValue(tc.in); got != tc.want {
			t.Errorf("DecodeFormValue(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseForm(t *testing.T) {
	f := ParseForm("ssid=Home+Net&password=s%26cret&ssid=Other")
	if v, ok := f.Get("ssid"); !ok || v != "Home Net" {
		t.Errorf("expected first ssid to win, got %q, %v", v, ok)
	}
	if v, ok := f.Get("password"); !ok || v != "s&cret" {
		t.Errorf("expected decoded password, got %q, %v", v, ok)
	}
	if _, ok := f.Get("missing"); ok {
		t.Error("expected missing key to be absent")
	}
}

func TestParseFormStopsAtMalformedPair(t *testing.T) {
	f := ParseForm("ssid=Home&broken&password=secret")
	if _, ok := f.Get("ssid"); !ok {
		t.Error("expected ssid before the malformed pair")
	}
	if _, ok := f.Get("password"); ok {
		t.Error("expected parsing to stop at the malformed pair")
	}
}

func TestParseFormEmptyValues(t *testing.T) {
	f := ParseForm("ssid=&password=")
	if v, ok := f.Get("ssid"); !ok || v != "" {
		t.Errorf("expected empty ssid to be present, got %q, %v", v, ok)
	}
	if f.Len() != 2 {
		t.Errorf("expected 2 fields, got %d", f.Len())
	}
}

func TestParseFormFieldLimit(t *testing.T) {
	var pairs []string
	for i := 0; i < maxFormFields+5; i++ {
		pairs = append(pairs, "k=v")
	}
	f := ParseForm(strings.Join(pairs, "&") + "&ssid=late")
	if f.Len() != maxFormFields {
		t.Errorf("expected %d fields, got %d", maxFormFields, f.Len())
	}
	if _, ok := f.Get("ssid"); ok {
		t.Error("expected fields past the limit to be ignored")
	}
}
