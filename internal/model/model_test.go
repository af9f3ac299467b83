package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerificationPolicy_Verified(t *testing.T) {
	vp := VerificationPolicy{MinLevel: 5, MinAds: 10}

	tests := []struct {
		name string
		p    Progress
		want bool
	}{
		{"fresh user", Progress{Level: 1, AdWatchCount: 0}, false},
		{"level only", Progress{Level: 5, AdWatchCount: 9}, false},
		{"ads only", Progress{Level: 4, AdWatchCount: 10}, false},
		{"exact thresholds", Progress{Level: 5, AdWatchCount: 10}, true},
		{"above thresholds", Progress{Level: 9, AdWatchCount: 300}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, vp.Verified(tt.p))
		})
	}
}

func TestVerificationPolicy_Transitioned(t *testing.T) {
	vp := VerificationPolicy{MinLevel: 5, MinAds: 10}

	assert.True(t, vp.Transitioned(Progress{Level: 5, AdWatchCount: 9}, Progress{Level: 5, AdWatchCount: 10}))
	assert.True(t, vp.Transitioned(Progress{Level: 4, AdWatchCount: 12}, Progress{Level: 5, AdWatchCount: 12}))
	assert.False(t, vp.Transitioned(Progress{Level: 5, AdWatchCount: 10}, Progress{Level: 5, AdWatchCount: 11}), "already verified")
	assert.False(t, vp.Transitioned(Progress{Level: 1, AdWatchCount: 1}, Progress{Level: 1, AdWatchCount: 2}), "still unverified")
}

func TestNormalizeIP(t *testing.T) {
	assert.Equal(t, "", NormalizeIP("   "))
	assert.Equal(t, "10.0.0.1", NormalizeIP(" 10.0.0.1 "))
	assert.Equal(t, "10.0.0.1", NormalizeIP("::ffff:10.0.0.1"))
	assert.Equal(t, "2001:db8::1", NormalizeIP("2001:DB8:0::1"))
	assert.Equal(t, "not-an-ip", NormalizeIP("NOT-an-IP"))
}

func TestNormalizeDeviceID(t *testing.T) {
	assert.Equal(t, "", NormalizeDeviceID(""))
	assert.Equal(t, "abc-def", NormalizeDeviceID(" ABC-def "))

	// "é" composed vs. "e" + combining acute must collapse to one identity.
	composed := NormalizeDeviceID("caf\u00e9")
	decomposed := NormalizeDeviceID("cafe\u0301")
	assert.Equal(t, composed, decomposed)
}

func TestUUIDv7Generator(t *testing.T) {
	gen := UUIDv7Generator{}
	a := gen.Generate()
	b := gen.Generate()

	require.NotEqual(t, a, b)
	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}
