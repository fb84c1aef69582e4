package models_test

import (
	"testing"

	"github.com/edgewatch/edgepull/models"
)

func TestEqualNumericCrossType(t *testing.T) {
	tests := []struct {
		name string
		a, b models.Value
		want bool
	}{
		{"int == int", int64(5), int64(5), true},
		{"int != int", int64(5), int64(6), false},
		{"int == uint", int64(5), uint64(5), true},
		{"int == float", int64(5), float64(5), true},
		{"uint == float", uint64(100), float64(100), true},
		{"float != float", float64(1.5), float64(1.6), false},
		{"bool == bool", true, true, true},
		{"bool != bool", true, false, false},
		{"string == string", "a", "a", true},
		{"string != string", "a", "b", false},
		{"bool != int", true, int64(1), false},
		{"nil == nil", nil, nil, true},
		{"nil != value", nil, int64(0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := models.Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestAsUint64(t *testing.T) {
	if v, err := models.AsUint64(uint64(18446744073709551615)); err != nil || v != 18446744073709551615 {
		t.Errorf("AsUint64(max) = (%d, %v)", v, err)
	}
	if v, err := models.AsUint64(int64(42)); err != nil || v != 42 {
		t.Errorf("AsUint64(42) = (%d, %v)", v, err)
	}
	if _, err := models.AsUint64(int64(-1)); err == nil {
		t.Error("AsUint64(-1): expected error")
	}
	if _, err := models.AsUint64(1.5); err == nil {
		t.Error("AsUint64(1.5): expected error")
	}
	if _, err := models.AsUint64("x"); err == nil {
		t.Error("AsUint64(string): expected error")
	}
	if v, err := models.AsUint64(float64(7)); err != nil || v != 7 {
		t.Errorf("AsUint64(7.0) = (%d, %v)", v, err)
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		v    models.Value
		want bool
	}{
		{true, true},
		{false, false},
		{int64(0), false},
		{int64(3), true},
		{float64(0), false},
		{float64(0.1), true},
		{"", false},
		{"x", true},
	}
	for _, tt := range tests {
		if got := models.Truthy(tt.v); got != tt.want {
			t.Errorf("Truthy(%v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}
