package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintIsStableAndLength32(t *testing.T) {
	a := Fingerprint("c30 混凝土强度")
	b := Fingerprint("c30 混凝土强度")
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestFingerprintDiffersOnDifferentInput(t *testing.T) {
	assert.NotEqual(t, Fingerprint("a"), Fingerprint("b"))
}
