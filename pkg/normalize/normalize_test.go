package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"blank", "   ", ""},
		{"domestic unchanged", "0987654321", "0987654321"},
		{"country code plus", "+84987654321", "0987654321"},
		{"country code bare", "84987654321", "0987654321"},
		{"formatting stripped", "(098) 765-4321", "0987654321"},
		{"short 84 number kept", "8412345", "8412345"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Phone(tt.input))
		})
	}
}

func TestPhoneRoundTrip(t *testing.T) {
	assert.Equal(t, Phone("0987654321"), Phone("+84987654321"))
	assert.Equal(t, "0987654321", Phone("+84987654321"))
}

func TestDOB(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"blank", "", ""},
		{"iso passthrough", "1990-01-31", "1990-01-31"},
		{"dmy slash", "31/01/1990", "1990-01-31"},
		{"ymd slash", "1990/01/31", "1990-01-31"},
		{"dmy dash", "31-01-1990", "1990-01-31"},
		{"unknown passthrough", "Jan 31 1990", "Jan 31 1990"},
		{"trimmed", "  1990-01-31  ", "1990-01-31"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DOB(tt.input))
		})
	}
}

func TestEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", Email("  A@X.com "))
	assert.Equal(t, "", Email("   "))
}

func TestName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"blank", "  ", ""},
		{"vietnamese accents", "Nguyễn Văn A", "nguyen van a"},
		{"collapse whitespace", "  Trần   Thị   Bích  ", "tran thi bich"},
		{"dstroke", "Đặng Đình Đức", "dang dinh duc"},
		{"ascii untouched", "John Smith", "john smith"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Name(tt.input))
		})
	}
}

func TestStripAccentsPreservesCase(t *testing.T) {
	assert.Equal(t, "Nguyen Van A", StripAccents("Nguyễn Văn A"))
	assert.Equal(t, "DANG", StripAccents("ĐẶNG"))
}
