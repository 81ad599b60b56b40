package material

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmsellier/archimedes-go/internal/consts"
)

func TestBuildRateTablesRejectsInvalidBins(t *testing.T) {
	si, _ := Lookup(Silicon)
	_, err := BuildRateTables(si, BuildOptions{LatticeTempK: 300, DIME: 0, DeltaEps: 0.01 * consts.Charge, AcousticEnabled: true, OpticalEnabled: true})
	assert.Error(t, err)
}

func TestBuildRateTablesMonotonicCumulativeRows(t *testing.T) {
	si, _ := Lookup(Silicon)
	tables, err := BuildRateTables(si, BuildOptions{
		LatticeTempK:    300,
		ImpurityConc:    1e23,
		DIME:            50,
		DeltaEps:        0.01 * consts.Charge,
		AcousticEnabled: true,
		OpticalEnabled:  true,
		ImpurityEnabled: true,
	})
	require.NoError(t, err)
	require.Len(t, tables, si.NumValleys)

	table := tables[0]
	for _, row := range table.Rows {
		for k := 1; k < len(row); k++ {
			assert.GreaterOrEqual(t, row[k], row[k-1])
		}
		// last column is always the self-scattering ceiling
		assert.Equal(t, table.Gamma, row[len(row)-1])
	}
}

func TestSelectMechanismAtLowEnergyIsSelfScatterDominant(t *testing.T) {
	si, _ := Lookup(Silicon)
	tables, err := BuildRateTables(si, BuildOptions{
		LatticeTempK:    300,
		DIME:            50,
		DeltaEps:        0.01 * consts.Charge,
		AcousticEnabled: true,
		OpticalEnabled:  true,
	})
	require.NoError(t, err)
	table := tables[0]

	// drawing right at the Gamma ceiling always selects self-scatter.
	_, isSelf := table.SelectMechanism(0, table.Gamma)
	assert.True(t, isSelf)

	// drawing at zero should select the first real mechanism or lower.
	idx, isSelf := table.SelectMechanism(0, 0)
	assert.False(t, isSelf)
	assert.Equal(t, 0, idx)
}

func TestGaAsHasIntervalleyChannels(t *testing.T) {
	gaas, _ := Lookup(GaAs)
	assert.NotEmpty(t, gaas.Valleys[0].Intervalley)

	tables, err := BuildRateTables(gaas, BuildOptions{
		LatticeTempK:    300,
		DIME:            50,
		DeltaEps:        0.01 * consts.Charge,
		AcousticEnabled: true,
		OpticalEnabled:  true,
	})
	require.NoError(t, err)

	found := false
	for _, mech := range tables[0].Mechs {
		if mech.Kind == MechIntervalley {
			found = true
		}
	}
	assert.True(t, found, "expected at least one intervalley column in the gamma-valley table")
}
