package config

import (
	"testing"
	"time"
)

func TestConfigValue_IsSet(t *testing.T) {
	t.Run("unset value", func(t *testing.T) {
		var cv ConfigValue[bool]
		if cv.IsSet() {
			t.Error("Expected IsSet to return false for unset value")
		}
	})

	t.Run("set value", func(t *testing.T) {
		cv := NewConfigValue(true)
		if !cv.IsSet() {
			t.Error("Expected IsSet to return true for set value")
		}
	})
}

func TestConfigValue_Get(t *testing.T) {
	t.Run("unset value", func(t *testing.T) {
		var cv ConfigValue[int]
		val, ok := cv.Get()
		if ok {
			t.Error("Expected Get to return false for unset value")
		}
		if val != 0 {
			t.Error("Expected Get to return zero value for unset value")
		}
	})

	t.Run("set value", func(t *testing.T) {
		cv := NewConfigValue(12)
		val, ok := cv.Get()
		if !ok || val != 12 {
			t.Errorf("Expected Get to return 12, got %v", val)
		}
	})
}

func TestConfigValue_Resolve(t *testing.T) {
	if v := (ConfigValue[int]{}).Resolve(3); v != 3 {
		t.Errorf("Expected default 3, got %d", v)
	}
	if v := NewConfigValue(5).Resolve(3); v != 5 {
		t.Errorf("Expected client value 5, got %d", v)
	}
}

func TestParsePositiveIntConfigValue(t *testing.T) {
	tests := []struct {
		value string
		isSet bool
		want  int
	}{
		{"10", true, 10},
		{"0", false, 0},
		{"-3", false, 0},
		{"1.5", false, 0},
		{"", false, 0},
	}

	for _, tt := range tests {
		cv := ParsePositiveIntConfigValue(map[string]string{"k": tt.value}, "k")
		if cv.IsSet() != tt.isSet {
			t.Errorf("%q: expected IsSet %v", tt.value, tt.isSet)
		}
		if v, _ := cv.Get(); v != tt.want {
			t.Errorf("%q: expected %d, got %d", tt.value, tt.want, v)
		}
	}

	if ParsePositiveIntConfigValue(nil, "k").IsSet() {
		t.Error("Expected missing key to be unset")
	}
}

func TestParsePositiveDurationConfigValue(t *testing.T) {
	tests := []struct {
		value string
		isSet bool
		want  time.Duration
	}{
		{"250", true, 250 * time.Millisecond},
		{"9223372036854", true, 9223372036854 * time.Millisecond},
		{"9223372036855", false, 0},
		{"99999999999999999999", false, 0},
		{"0", false, 0},
		{"-1", false, 0},
	}

	for _, tt := range tests {
		cv := ParsePositiveDurationConfigValue(map[string]string{"k": tt.value}, "k", time.Millisecond)
		if cv.IsSet() != tt.isSet {
			t.Errorf("%q: expected IsSet %v", tt.value, tt.isSet)
		}
		if v, _ := cv.Get(); v != tt.want {
			t.Errorf("%q: expected %s, got %s", tt.value, tt.want, v)
		}
	}
}

func TestParseBoolConfigValue(t *testing.T) {
	for value, want := range map[string]bool{"true": true, "1": true, "false": false, "0": false} {
		v, ok := ParseBoolConfigValue(map[string]string{"k": value}, "k").Get()
		if !ok || v != want {
			t.Errorf("%q: expected %v", value, want)
		}
	}
	if ParseBoolConfigValue(map[string]string{"k": "yes"}, "k").IsSet() {
		t.Error("Expected invalid bool to be unset")
	}
}
