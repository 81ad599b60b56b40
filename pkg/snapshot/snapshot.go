// Package snapshot reshapes a mesh's state into the fixed-schema record the
// spec names, and defines the Sink the simulation loop emits to — the same
// accumulate-into-a-struct-then-hand-off idiom as
// edp1096-toy-spice/pkg/analysis/anlysis.go's BaseAnalysis.GetResults, but
// against a typed struct instead of an open-ended named-series map since
// this schema is fixed rather than analysis-defined.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jmsellier/archimedes-go/pkg/mesh"
)

// NodeState is one mesh node's observable state at the time of the snapshot.
type NodeState struct {
	I, J          int
	Electron      mesh.CarrierInfo
	Hole          mesh.CarrierInfo
	Potential     float64
	EField        [2]float64
	MagneticField float64
}

// Snapshot is a point-in-time capture of the whole device state plus the
// bookkeeping counters the spec's error-handling section requires be
// observable.
type Snapshot struct {
	StepIndex int
	SimTime   float64

	NX, NY int
	Nodes  []NodeState

	PoissonResidual   float64
	PoissonIterations int

	LiveParticles   int
	DroppedParticles int
	NumericalResets  int
}

// FromMesh captures m's current state into a Snapshot.
func FromMesh(m *mesh.Mesh, stepIndex int, simTime float64) Snapshot {
	s := Snapshot{StepIndex: stepIndex, SimTime: simTime, NX: m.NX, NY: m.NY}
	s.Nodes = make([]NodeState, 0, (m.NX+1)*(m.NY+1))
	m.ForEachNode(func(n *mesh.Node) {
		s.Nodes = append(s.Nodes, NodeState{
			I: n.I, J: n.J,
			Electron: n.Electron, Hole: n.Hole,
			Potential: n.Potential, EField: n.EField, MagneticField: n.MagneticField,
		})
	})
	return s
}

// EmittedParticle records one particle that left the device through a
// vacuum boundary during the step the snapshot covers.
type EmittedParticle struct {
	ID             int
	TEmit          float64
	ResidualEnergy float64
}

// Sink receives snapshots and emitted-particle events as the simulation
// runs; implementations decide how (or whether) to persist them.
type Sink interface {
	Emit(Snapshot) error
	EmitParticle(EmittedParticle) error
}

// JSONLinesSink writes one JSON object per line to an io.Writer-backed file,
// the simplest durable sink and the one cmd/emc uses by default.
type JSONLinesSink struct {
	f *os.File
}

// NewJSONLinesSink opens (creating/truncating) path for JSON-lines output.
func NewJSONLinesSink(path string) (*JSONLinesSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: opening sink file: %w", err)
	}
	return &JSONLinesSink{f: f}, nil
}

func (s *JSONLinesSink) Emit(snap Snapshot) error {
	enc := json.NewEncoder(s.f)
	return enc.Encode(snap)
}

func (s *JSONLinesSink) EmitParticle(p EmittedParticle) error {
	enc := json.NewEncoder(s.f)
	return enc.Encode(p)
}

// Close flushes and closes the underlying file.
func (s *JSONLinesSink) Close() error { return s.f.Close() }

// MemorySink collects every emitted snapshot/particle in memory, used by
// tests that want to assert on the emitted sequence without touching disk.
type MemorySink struct {
	Snapshots []Snapshot
	Particles []EmittedParticle
}

func (s *MemorySink) Emit(snap Snapshot) error {
	s.Snapshots = append(s.Snapshots, snap)
	return nil
}

func (s *MemorySink) EmitParticle(p EmittedParticle) error {
	s.Particles = append(s.Particles, p)
	return nil
}
