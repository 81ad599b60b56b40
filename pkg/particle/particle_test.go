package particle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmsellier/archimedes-go/pkg/material"
)

func TestPoolSpawnAndRemove(t *testing.T) {
	p := NewPool(4, 1)
	assert.Equal(t, 4, p.Cap())
	assert.Equal(t, 0, p.Live())

	idx := p.Spawn(Particle{Species: Electron, X: 1, Y: 2})
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, 1, p.Live())
	assert.True(t, p.At(idx).Alive())

	p.Remove(idx)
	assert.Equal(t, 0, p.Live())
	assert.False(t, p.At(idx).Alive())
}

func TestPoolDropsWhenFull(t *testing.T) {
	p := NewPool(2, 1)
	p.Spawn(Particle{})
	p.Spawn(Particle{})
	idx := p.Spawn(Particle{})
	assert.Equal(t, -1, idx)
	assert.Equal(t, 1, p.Dropped)
}

func TestForEachLiveVisitsOnlyAlive(t *testing.T) {
	p := NewPool(8, 1)
	a := p.Spawn(Particle{})
	b := p.Spawn(Particle{})
	p.Remove(a)

	seen := 0
	p.ForEachLive(func(idx int, pt *Particle) { seen++ })
	assert.Equal(t, 1, seen)
	_ = b
}

func TestShardRNGIsDeterministic(t *testing.T) {
	r1 := ShardRNG(42, 7)
	r2 := ShardRNG(42, 7)
	for i := 0; i < 20; i++ {
		assert.Equal(t, r1.Uint64(), r2.Uint64())
	}

	r3 := ShardRNG(42, 8)
	assert.NotEqual(t, ShardRNG(42, 7).Uint64(), r3.Uint64())
}

func TestInjectionSampleScalesWithTemperature(t *testing.T) {
	si, _ := material.Lookup(material.Silicon)
	shard := ShardRNG(1, 1)

	var sumSq float64
	const n = 2000
	for i := 0; i < n; i++ {
		kx, ky := InjectionSample(shard, si, 0, 300)
		sumSq += kx*kx + ky*ky
	}
	meanSq := sumSq / n
	assert.Greater(t, meanSq, 0.0)

	var hotSumSq float64
	for i := 0; i < n; i++ {
		kx, ky := InjectionSample(shard, si, 0, 1200)
		hotSumSq += kx*kx + ky*ky
	}
	assert.Greater(t, hotSumSq/n, meanSq)
}
