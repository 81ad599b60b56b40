// Package config loads the simulation's run parameters: embedded defaults
// merged with an optional user override file, the same
// embed-defaults-then-overlay-then-validate shape as pthm-soup/config/config.go.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config is the full run configuration: mesh geometry, material selection,
// field solver tuning, the particle pool, scattering tables, the MEP
// alternative, and snapshot cadence.
type Config struct {
	Mesh      MeshConfig      `yaml:"mesh"`
	Material  MaterialConfig  `yaml:"material"`
	Field     FieldConfig     `yaml:"field"`
	Particle  ParticleConfig  `yaml:"particle"`
	Scattering ScatteringConfig `yaml:"scattering"`
	Driver    DriverConfig    `yaml:"driver"`
	MEP       MEPConfig       `yaml:"mep"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
}

// MeshConfig is the rectangular device domain's discretization.
type MeshConfig struct {
	NX int     `yaml:"nx"`
	NY int     `yaml:"ny"`
	DX float64 `yaml:"dx"` // m
	DY float64 `yaml:"dy"` // m
}

// MaterialConfig selects the base material (and, for a compound, the
// mole-fraction blend against a second endpoint material).
type MaterialConfig struct {
	Base         string  `yaml:"base"`          // "Si", "GaAs", "AlAs", "InP", "InAs"
	AlloyWith    string  `yaml:"alloy_with"`     // optional second endpoint, e.g. "AlAs" for AlGaAs
	MoleFraction float64 `yaml:"mole_fraction"`  // fraction of AlloyWith
	LatticeTempK float64 `yaml:"lattice_temp_k"`
	ImpurityConc float64 `yaml:"impurity_conc"` // 1/m^3, for Brooks-Herring impurity scattering
}

// FieldConfig tunes the Poisson/Faraday solvers.
type FieldConfig struct {
	SOROmega               float64 `yaml:"sor_omega"`
	SORMaxIter             int     `yaml:"sor_max_iter"`
	SORTolerance           float64 `yaml:"sor_tolerance"`
	FaradayEnabled         bool    `yaml:"faraday_enabled"`
	VerifyWithDirectSolver bool    `yaml:"verify_with_direct_solver"`
}

// ParticleConfig sizes the super-particle pool.
type ParticleConfig struct {
	PoolCapacity        int     `yaml:"pool_capacity"`
	SuperParticleWeight float64 `yaml:"super_particle_weight"`
	RootSeed            uint64  `yaml:"root_seed"`
}

// ScatteringConfig sizes the rate tables built ahead of the run and gates
// which mechanism families contribute to them.
type ScatteringConfig struct {
	DIME          int     `yaml:"dime"`
	DeltaEpsEV    float64 `yaml:"delta_eps_ev"`
	GammaHeadroom float64 `yaml:"gamma_headroom"`
	BandModel     string  `yaml:"band_model"` // "parabolic", "kane", "full_band"

	AcousticEnabled bool `yaml:"acoustic_enabled"`
	OpticalEnabled  bool `yaml:"optical_enabled"`
	ImpurityEnabled bool `yaml:"impurity_enabled"`
}

// DriverConfig controls the EMC macro-timestep loop.
type DriverConfig struct {
	DT       float64 `yaml:"dt"`       // macro-timestep, s
	NumSteps int     `yaml:"num_steps"`

	// MediaWindow is the number of macro-timesteps between MEDIA reporting
	// passes: moment finalization and field re-solve run on this cadence
	// rather than every macro-step. <=0 means every step.
	MediaWindow int `yaml:"media_window"`
}

// MEPConfig controls the parabolic MEP hydrodynamic alternative path.
type MEPConfig struct {
	Enabled            bool    `yaml:"enabled"`
	TauP               float64 `yaml:"tau_p"` // momentum relaxation time, s
	TauW               float64 `yaml:"tau_w"` // energy relaxation time, s
	RelaxationSubsteps int     `yaml:"relaxation_substeps"`
	ImplicitRelaxation bool    `yaml:"implicit_relaxation"`
}

// SnapshotConfig sets the emission cadence for mesh snapshots.
type SnapshotConfig struct {
	EveryNSteps int `yaml:"every_n_steps"`
}

// global holds the process-wide loaded configuration.
var global *Config

// Init loads configuration from path (embedded defaults only if path is
// empty), validates it, and installs it as the global config. Must be
// called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load reads embedded defaults, then overlays path (if non-empty), then
// validates the merged result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading override file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing override file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the rest of the module assumes hold: a
// malformed config should fail fast here rather than surface as a confusing
// panic deep in the solver.
func (c *Config) Validate() error {
	if c.Mesh.NX <= 0 || c.Mesh.NY <= 0 {
		return fmt.Errorf("config: mesh.nx/ny must be positive, got %d/%d", c.Mesh.NX, c.Mesh.NY)
	}
	if c.Mesh.DX <= 0 || c.Mesh.DY <= 0 {
		return fmt.Errorf("config: mesh.dx/dy must be positive, got %g/%g", c.Mesh.DX, c.Mesh.DY)
	}
	if c.Material.Base == "" {
		return fmt.Errorf("config: material.base must be set")
	}
	if c.Material.MoleFraction < 0 || c.Material.MoleFraction > 1 {
		return fmt.Errorf("config: material.mole_fraction must be in [0,1], got %g", c.Material.MoleFraction)
	}
	if c.Material.LatticeTempK <= 0 {
		return fmt.Errorf("config: material.lattice_temp_k must be positive, got %g", c.Material.LatticeTempK)
	}
	if c.Field.SORMaxIter <= 0 {
		return fmt.Errorf("config: field.sor_max_iter must be positive, got %d", c.Field.SORMaxIter)
	}
	if c.Field.SOROmega <= 0 || c.Field.SOROmega >= 2 {
		return fmt.Errorf("config: field.sor_omega must be in (0,2), got %g", c.Field.SOROmega)
	}
	if c.Particle.PoolCapacity <= 0 {
		return fmt.Errorf("config: particle.pool_capacity must be positive, got %d", c.Particle.PoolCapacity)
	}
	if c.Scattering.DIME <= 0 || c.Scattering.DeltaEpsEV <= 0 {
		return fmt.Errorf("config: scattering.dime/delta_eps_ev must be positive, got %d/%g", c.Scattering.DIME, c.Scattering.DeltaEpsEV)
	}
	switch c.Scattering.BandModel {
	case "parabolic", "kane", "full_band":
	default:
		return fmt.Errorf("config: scattering.band_model must be one of parabolic/kane/full_band, got %q", c.Scattering.BandModel)
	}
	if c.Driver.DT <= 0 || c.Driver.NumSteps <= 0 {
		return fmt.Errorf("config: driver.dt/num_steps must be positive, got %g/%d", c.Driver.DT, c.Driver.NumSteps)
	}
	if c.Driver.MediaWindow < 0 {
		return fmt.Errorf("config: driver.media_window must be non-negative, got %d", c.Driver.MediaWindow)
	}
	if c.MEP.Enabled && (c.MEP.TauP <= 0 || c.MEP.TauW <= 0) {
		return fmt.Errorf("config: mep.tau_p/tau_w must be positive when mep.enabled, got %g/%g", c.MEP.TauP, c.MEP.TauW)
	}
	return nil
}
