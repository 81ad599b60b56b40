package material

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupKnownMaterials(t *testing.T) {
	for _, id := range []ID{Silicon, GaAs, AlAs, InP, InAs} {
		m, ok := Lookup(id)
		require.True(t, ok, "material %v should be registered", id)
		assert.Greater(t, m.EpsStatic, 1.0)
		assert.Greater(t, m.NumValleys, 0)
	}
}

func TestBandGapDecreasesWithTemperature(t *testing.T) {
	si, _ := Lookup(Silicon)
	g0 := si.BandGap(0)
	g300 := si.BandGap(300)
	assert.Greater(t, g0, g300)
}

func TestBlendInterpolatesEndpoints(t *testing.T) {
	gaas, _ := Lookup(GaAs)
	alas, _ := Lookup(AlAs)

	atZero := Blend(gaas, alas, 0)
	assert.InDelta(t, gaas.EpsStatic, atZero.EpsStatic, 1e-9)

	atOne := Blend(gaas, alas, 1)
	assert.InDelta(t, alas.EpsStatic, atOne.EpsStatic, 1e-9)

	mid := Blend(gaas, alas, 0.3)
	assert.Greater(t, mid.EpsStatic, alas.EpsStatic)
	assert.Less(t, mid.EpsStatic, gaas.EpsStatic)
}
