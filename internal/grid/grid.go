// Package grid holds the pure math for building a price/size ladder around a
// reference price. A grid is immutable once built; strategies replace the
// whole ladder on rebuild, never patch it.
package grid

import (
	"fmt"
)

// Placement tags where a level sits relative to the reference price.
type Placement string

const (
	Upper  Placement = "upper"
	Middle Placement = "middle"
	Lower  Placement = "lower"
)

// Level is one rung of the ladder.
type Level struct {
	Price     float64
	BuySize   float64
	SellSize  float64
	Active    bool
	Placement Placement
}

// Params configures a ladder build.
type Params struct {
	ReferencePrice float64
	Levels         int     // N; must be even and > 0. The grid has N+1 rungs.
	Spacing        float64 // fractional distance between adjacent rungs
	Investment     float64 // capital allocated across the ladder
	Leverage       float64
}

// Build generates N+1 levels: N/2 below the reference, one at it, N/2 above.
// price_i = P * (1 + i*s) for i in [-N/2, N/2]; sizes split the leveraged
// investment equally by notional across rungs.
func Build(p Params) ([]Level, error) {
	if p.ReferencePrice <= 0 {
		return nil, fmt.Errorf("reference price must be positive, got %v", p.ReferencePrice)
	}
	if p.Levels <= 0 || p.Levels%2 != 0 {
		return nil, fmt.Errorf("level count must be positive and even, got %d", p.Levels)
	}
	if p.Spacing <= 0 {
		return nil, fmt.Errorf("spacing must be positive, got %v", p.Spacing)
	}
	if p.Spacing*float64(p.Levels/2) >= 1 {
		return nil, fmt.Errorf("spacing %v too wide for %d levels: lowest rung would be non-positive", p.Spacing, p.Levels)
	}
	if p.Investment <= 0 {
		return nil, fmt.Errorf("investment must be positive, got %v", p.Investment)
	}
	if p.Leverage <= 0 {
		return nil, fmt.Errorf("leverage must be positive, got %v", p.Leverage)
	}

	half := p.Levels / 2
	perLevel := p.Investment / float64(p.Levels+1) * p.Leverage

	levels := make([]Level, 0, p.Levels+1)
	for i := -half; i <= half; i++ {
		price := p.ReferencePrice * (1 + float64(i)*p.Spacing)
		size := perLevel / price

		placement := Middle
		switch {
		case i < 0:
			placement = Lower
		case i > 0:
			placement = Upper
		}

		levels = append(levels, Level{
			Price:     price,
			BuySize:   size,
			SellSize:  size,
			Active:    true,
			Placement: placement,
		})
	}
	return levels, nil
}

// Bounds returns the lowest and highest rung prices.
func Bounds(levels []Level) (min, max float64) {
	if len(levels) == 0 {
		return 0, 0
	}
	return levels[0].Price, levels[len(levels)-1].Price
}

// Center returns the midpoint of the ladder's bounds.
func Center(levels []Level) float64 {
	min, max := Bounds(levels)
	return (min + max) / 2
}

// Deviation measures how far price has drifted from the ladder center as a
// fraction of the center.
func Deviation(levels []Level, price float64) float64 {
	c := Center(levels)
	if c == 0 {
		return 0
	}
	d := (price - c) / c
	if d < 0 {
		return -d
	}
	return d
}
