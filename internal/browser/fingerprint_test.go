package browser

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickProducesCompleteFingerprints(t *testing.T) {
	pools := DefaultPools()
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 20; i++ {
		fp := pools.Pick(rng)
		assert.NotEmpty(t, fp.UserAgent)
		assert.Greater(t, fp.ViewportWidth, 0)
		assert.Greater(t, fp.ViewportHeight, 0)
		assert.Greater(t, fp.DeviceScale, 0.0)
		assert.NotEmpty(t, fp.Locale)
		assert.NotEmpty(t, fp.TimezoneID)
		assert.NotEmpty(t, fp.AcceptLanguage)
	}
}

func TestPickVariesAcrossDraws(t *testing.T) {
	pools := DefaultPools()
	rng := rand.New(rand.NewSource(42))

	seen := map[Fingerprint]bool{}
	for i := 0; i < 50; i++ {
		seen[pools.Pick(rng)] = true
	}
	assert.Greater(t, len(seen), 1, "fingerprints must not all be identical")
}

func TestPickIsDeterministicPerSeed(t *testing.T) {
	pools := DefaultPools()
	a := pools.Pick(rand.New(rand.NewSource(7)))
	b := pools.Pick(rand.New(rand.NewSource(7)))
	require.Equal(t, a, b)
}

func TestStealthScriptMasksAutomationTells(t *testing.T) {
	assert.Contains(t, stealthScript, "webdriver")
	assert.Contains(t, stealthScript, "plugins")
	assert.Contains(t, stealthScript, "permissions.query")
	assert.False(t, strings.Contains(stealthScript, "playwright"), "script must not name the driver")
}
