package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"", false, false},
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"on", false, true},
		{"false", true, false},
		{"0", true, false},
		{"No", true, false},
		{"off", true, false},
		{"garbage", true, true},
		{"garbage", false, false},
		{"  true  ", false, true},
	}
	for _, tc := range cases {
		t.Setenv("TEST_BOOL", tc.value)
		if got := ParseBoolEnv("TEST_BOOL", tc.def); got != tc.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tc.value, tc.def, got, tc.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("TEST_INT", "")
	if got := ParseIntEnv("TEST_INT", 5); got != 5 {
		t.Errorf("empty value: got %d, want default 5", got)
	}
	t.Setenv("TEST_INT", "12")
	if got := ParseIntEnv("TEST_INT", 5); got != 12 {
		t.Errorf("got %d, want 12", got)
	}
	t.Setenv("TEST_INT", "not-a-number")
	if got := ParseIntEnv("TEST_INT", 5); got != 5 {
		t.Errorf("invalid value: got %d, want default 5", got)
	}
}

func TestParseFloatEnv(t *testing.T) {
	t.Setenv("TEST_FLOAT", "0.25")
	if got := ParseFloatEnv("TEST_FLOAT", 0.01); got != 0.25 {
		t.Errorf("got %v, want 0.25", got)
	}
	t.Setenv("TEST_FLOAT", "oops")
	if got := ParseFloatEnv("TEST_FLOAT", 0.01); got != 0.01 {
		t.Errorf("invalid value: got %v, want default 0.01", got)
	}
}
