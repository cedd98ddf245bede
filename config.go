// This is free and unencumbered software released into the public domain.
//
// Anyone is free to copy, modify, publish, use, compile, sell, or
// distribute this software, either in source code form or as a compiled
// binary, for any purpose, commercial or non-commercial, and by any
// means.
//
// In jurisdictions that recognize copyright laws, the author or authors
// of this software dedicate any and all copyright interest in the
// software to the public domain. We make this dedication for the benefit
// of the public at large and to the detriment of our heirs and
// successors. We intend this dedication to be an overt act of
// relinquishment in perpetuity of all present and future rights to this
// software under copyright law.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
// MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
// IN NO EVENT SHALL THE AUTHORS BE LIABLE FOR ANY CLAIM, DAMAGES OR
// OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE,
// ARISING FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.
//
// For more information, please refer to <https://unlicense.org>

package claimtrie

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Params holds the consensus constants of the claim trie for one network.
type Params struct {
	Name string

	// Expiration durations before and after the expiration fork.
	OriginalClaimExpirationTime int32
	ExtendedClaimExpirationTime int32

	ExtendedClaimExpirationForkHeight int32

	// Names are normalized in blocks strictly above this height.
	NormalizedNameForkHeight int32

	// Height from which every claim of a node takes part in its hash.
	AllClaimsInMerkleForkHeight int32

	// The takeover delay is the number of blocks the current winner has
	// been in control divided by ProportionalDelayFactor, capped at
	// MaxTakeoverDelay.
	ProportionalDelayFactor int32
	MaxTakeoverDelay        int32

	// Blocks strictly between the two heights reproduce takeover heights
	// of older nodes: a name whose support changed and whose node was then
	// emptied and refilled in the same block takes over again. Below the
	// maximum, removing the last claim of a node that has children also
	// lets the next claim for that name activate without delay.
	MinTakeoverWorkaroundHeight int32
	MaxTakeoverWorkaroundHeight int32
}

var (
	MainNetParams = Params{
		Name:                              "mainnet",
		OriginalClaimExpirationTime:       262974,
		ExtendedClaimExpirationTime:       2102400,
		ExtendedClaimExpirationForkHeight: 400155,
		NormalizedNameForkHeight:          539940,
		AllClaimsInMerkleForkHeight:       658310,
		ProportionalDelayFactor:           32,
		MaxTakeoverDelay:                  4032,
		MinTakeoverWorkaroundHeight:       496850,
		MaxTakeoverWorkaroundHeight:       658300,
	}

	TestNetParams = Params{
		Name:                              "testnet",
		OriginalClaimExpirationTime:       262974,
		ExtendedClaimExpirationTime:       2102400,
		ExtendedClaimExpirationForkHeight: 278160,
		NormalizedNameForkHeight:          993380,
		AllClaimsInMerkleForkHeight:       1198559,
		ProportionalDelayFactor:           32,
		MaxTakeoverDelay:                  4032,
		MinTakeoverWorkaroundHeight:       -1,
		MaxTakeoverWorkaroundHeight:       1200000,
	}

	RegressionNetParams = Params{
		Name:                              "regtest",
		OriginalClaimExpirationTime:       500,
		ExtendedClaimExpirationTime:       600,
		ExtendedClaimExpirationForkHeight: 800,
		NormalizedNameForkHeight:          250,
		AllClaimsInMerkleForkHeight:       350,
		ProportionalDelayFactor:           32,
		MaxTakeoverDelay:                  4032,
		MinTakeoverWorkaroundHeight:       -1,
		MaxTakeoverWorkaroundHeight:       -1,
	}
)

// ParamsForNetwork returns the preset registered under name.
func ParamsForNetwork(name string) (*Params, bool) {
	for _, p := range []*Params{&MainNetParams, &TestNetParams, &RegressionNetParams} {
		if p.Name == name {
			cp := *p
			return &cp, true
		}
	}
	return nil, false
}

// ExpirationTime returns the lifetime of claims and supports processed
// while nextHeight is the next block.
func (p *Params) ExpirationTime(nextHeight int32) int32 {
	if nextHeight < p.ExtendedClaimExpirationForkHeight {
		return p.OriginalClaimExpirationTime
	}
	return p.ExtendedClaimExpirationTime
}

func (p *Params) expirationExtension() int32 {
	return p.ExtendedClaimExpirationTime - p.OriginalClaimExpirationTime
}

func (p *Params) inRemovalWorkaround(nextHeight int32) bool {
	return nextHeight < p.MaxTakeoverWorkaroundHeight
}

func (p *Params) inTakeoverWorkaround(nextHeight int32) bool {
	return nextHeight > p.MinTakeoverWorkaroundHeight &&
		nextHeight < p.MaxTakeoverWorkaroundHeight
}

// Config holds everything needed to open a ClaimTrie.
type Config struct {
	Params *Params

	// RequireTakeoverHeights enables the takeover delay. Disabled only
	// by tests that want every claim to activate immediately.
	RequireTakeoverHeights bool

	// Registerer receives the trie metrics when set.
	Registerer prometheus.Registerer
}

// Option modifies the Config of a ClaimTrie.
type Option func(*Config)

func WithParams(p *Params) Option {
	return func(c *Config) {
		c.Params = p
	}
}

func WithRequireTakeoverHeights(require bool) Option {
	return func(c *Config) {
		c.RequireTakeoverHeights = require
	}
}

func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registerer = reg
	}
}

func initConfig(opts ...Option) *Config {
	cfg := &Config{
		Params:                 &MainNetParams,
		RequireTakeoverHeights: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
