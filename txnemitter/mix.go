// Copyright (c) Aptos
// SPDX-License-Identifier: Apache-2.0

// Package txnemitter generates load against a network. A mix generator
// composes simpler generators under configured weights, so one emitter
// run can blend transaction shapes in controlled proportions.
package txnemitter

import (
	"fmt"

	"github.com/mroth/weightedrand/v2"
)

// Generator produces a batch of serialized transactions for each of the
// given accounts.
type Generator interface {
	GenerateTransactions(accounts []string, perAccount int) [][]byte
}

// WeightedGenerator attaches a mix weight to a generator. The chance of
// a generator being picked for a batch is its weight over the total.
type WeightedGenerator struct {
	Generator Generator
	Weight    int
}

// MixGenerator picks one of its constituents per batch, weighted.
type MixGenerator struct {
	chooser *weightedrand.Chooser[Generator, int]
}

// NewMixGenerator builds a mix from weighted constituents. Weights must
// be positive and the mix non-empty.
func NewMixGenerator(mix []WeightedGenerator) (*MixGenerator, error) {
	if len(mix) == 0 {
		return nil, fmt.Errorf("empty transaction mix")
	}
	choices := make([]weightedrand.Choice[Generator, int], 0, len(mix))
	for _, wg := range mix {
		if wg.Weight <= 0 {
			return nil, fmt.Errorf("non-positive weight %d in transaction mix", wg.Weight)
		}
		choices = append(choices, weightedrand.NewChoice(wg.Generator, wg.Weight))
	}
	chooser, err := weightedrand.NewChooser(choices...)
	if err != nil {
		return nil, err
	}
	return &MixGenerator{chooser: chooser}, nil
}

// GenerateTransactions delegates the whole batch to one constituent,
// picked at random with probability proportional to its weight.
func (g *MixGenerator) GenerateTransactions(accounts []string, perAccount int) [][]byte {
	return g.chooser.Pick().GenerateTransactions(accounts, perAccount)
}
