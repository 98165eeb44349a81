package main

import "testing"

func TestEnvBool(t *testing.T) {
	cases := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"yes", false, true},
		{"ON", false, true},
		{"false", true, false},
		{"0", true, false},
		{"no", true, false},
		{" off ", true, false},
		{"bogus", true, true},
		{"bogus", false, false},
		{"", true, true},
		{"", false, false},
	}
	for _, tc := range cases {
		t.Setenv("FLOWBOT_TEST_BOOL", tc.value)
		if got := envBool("FLOWBOT_TEST_BOOL", tc.def); got != tc.want {
			t.Errorf("envBool(%q, %v) = %v, want %v", tc.value, tc.def, got, tc.want)
		}
	}
	if envBool("FLOWBOT_TEST_BOOL_UNSET", true) != true {
		t.Error("expected unset variable to use the default")
	}
}
