package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		value    string
		fallback bool
		want     bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{" on ", false, true},
		{"false", true, false},
		{"0", true, false},
		{"No", true, false},
		{"off", true, false},
		{"maybe", true, true},
		{"maybe", false, false},
	}
	for _, c := range cases {
		t.Setenv("DRILLDIAL_TEST_BOOL", c.value)
		if got := ParseBoolEnv("DRILLDIAL_TEST_BOOL", c.fallback); got != c.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", c.value, c.fallback, got, c.want)
		}
	}
}

func TestParseBoolEnvUnset(t *testing.T) {
	if !ParseBoolEnv("DRILLDIAL_TEST_BOOL_UNSET", true) {
		t.Error("unset variable should yield the fallback")
	}
	if ParseBoolEnv("DRILLDIAL_TEST_BOOL_UNSET", false) {
		t.Error("unset variable should yield the fallback")
	}
}
