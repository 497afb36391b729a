// Copyright (c) Aptos
// SPDX-License-Identifier: Apache-2.0

package txnemitter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type countingGenerator struct {
	name  string
	calls int
}

func (g *countingGenerator) GenerateTransactions(accounts []string, perAccount int) [][]byte {
	g.calls++
	out := make([][]byte, 0, len(accounts)*perAccount)
	for range accounts {
		for i := 0; i < perAccount; i++ {
			out = append(out, []byte(g.name))
		}
	}
	return out
}

func TestMixGeneratorRejectsBadMixes(t *testing.T) {
	_, err := NewMixGenerator(nil)
	require.Error(t, err)

	_, err = NewMixGenerator([]WeightedGenerator{
		{Generator: &countingGenerator{name: "a"}, Weight: 0},
	})
	require.Error(t, err)
}

func TestMixGeneratorDelegatesWholeBatch(t *testing.T) {
	gen := &countingGenerator{name: "transfer"}
	mix, err := NewMixGenerator([]WeightedGenerator{{Generator: gen, Weight: 1}})
	require.NoError(t, err)

	txns := mix.GenerateTransactions([]string{"acct-1", "acct-2"}, 3)
	require.Len(t, txns, 6)
	require.Equal(t, 1, gen.calls)
	for _, txn := range txns {
		require.Equal(t, []byte("transfer"), txn)
	}
}

func TestMixGeneratorRespectsWeights(t *testing.T) {
	heavy := &countingGenerator{name: "heavy"}
	light := &countingGenerator{name: "light"}
	mix, err := NewMixGenerator([]WeightedGenerator{
		{Generator: heavy, Weight: 9},
		{Generator: light, Weight: 1},
	})
	require.NoError(t, err)

	const rounds = 2000
	for i := 0; i < rounds; i++ {
		mix.GenerateTransactions([]string{"acct"}, 1)
	}
	require.Equal(t, rounds, heavy.calls+light.calls)

	// With 9:1 weights the heavy generator should take roughly 90% of
	// the batches. A wide margin keeps the test deterministic enough.
	require.Greater(t, heavy.calls, rounds*7/10)
	require.Less(t, light.calls, rounds*3/10)
}
