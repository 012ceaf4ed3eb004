package crypto

import (
	"math"
	"testing"
)

func TestSafeIntToUint32(t *testing.T) {
	tests := []struct {
		name    string
		input   int
		want    uint32
		wantErr bool
	}{
		{name: "zero value", input: 0, want: 0},
		{name: "positive value", input: 12345, want: 12345},
		{name: "max value", input: math.MaxUint32, want: math.MaxUint32},
		{name: "overflow value", input: math.MaxUint32 + 1, wantErr: true},
		{name: "negative value", input: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := safeIntToUint32(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("safeIntToUint32() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("safeIntToUint32() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSafeIterationCount(t *testing.T) {
	tests := []struct {
		name    string
		input   uint32
		want    int
		wantErr bool
	}{
		{name: "zero iterations", input: 0, wantErr: true},
		{name: "one iteration", input: 1, want: 1},
		{name: "max int32", input: math.MaxInt32, want: math.MaxInt32},
		{name: "above max int32", input: math.MaxInt32 + 1, wantErr: true},
		{name: "max uint32", input: math.MaxUint32, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := safeIterationCount(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("safeIterationCount() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("safeIterationCount() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClampIterations(t *testing.T) {
	tests := []struct {
		input int64
		want  int
	}{
		{input: -5, want: 1},
		{input: 0, want: 1},
		{input: 1, want: 1},
		{input: 250000, want: 250000},
		{input: math.MaxInt64, want: math.MaxInt32},
	}

	for _, tt := range tests {
		if got := clampIterations(tt.input); got != tt.want {
			t.Errorf("clampIterations(%d) = %d, want %d", tt.input, got, tt.want)
		}
	}
}
