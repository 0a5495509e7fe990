package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	t.Setenv("S4_TEST_STRING", "  bucket  ")
	assert.Equal(t, "bucket", String("S4_TEST_STRING", "fallback"))

	t.Setenv("S4_TEST_STRING", "   ")
	assert.Equal(t, "fallback", String("S4_TEST_STRING", "fallback"))
}

func TestInt(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"unset", "", 7},
		{"valid", "12", 12},
		{"zero falls back", "0", 7},
		{"negative falls back", "-3", 7},
		{"garbage falls back", "ten", 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("S4_TEST_INT", tt.raw)
			assert.Equal(t, tt.want, Int("S4_TEST_INT", 7))
		})
	}
}

func TestBool(t *testing.T) {
	t.Setenv("S4_TEST_BOOL", "true")
	assert.True(t, Bool("S4_TEST_BOOL", false))

	t.Setenv("S4_TEST_BOOL", "nope")
	assert.False(t, Bool("S4_TEST_BOOL", false))
}

func TestDuration(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Duration
	}{
		{"unset", "", time.Minute},
		{"seconds integer", "30", 30 * time.Second},
		{"duration syntax", "5m", 5 * time.Minute},
		{"zero falls back", "0", time.Minute},
		{"negative duration falls back", "-5s", time.Minute},
		{"garbage falls back", "soon", time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("S4_TEST_DURATION", tt.raw)
			assert.Equal(t, tt.want, Duration("S4_TEST_DURATION", time.Minute))
		})
	}
}

func TestCSV(t *testing.T) {
	t.Setenv("S4_TEST_CSV", "a, b,,a , c")
	assert.Equal(t, []string{"a", "b", "c"}, CSV("S4_TEST_CSV", []string{"x"}))

	t.Setenv("S4_TEST_CSV", " , ")
	assert.Equal(t, []string{"x"}, CSV("S4_TEST_CSV", []string{"x"}))
}
