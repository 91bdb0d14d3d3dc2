// Package mining brings a persisted rig state forward in time.
//
// Yield accrues per GPU per second while heat is below MaxHeat. Heat grows
// linearly at a rate divided by cooling power and saturates; a saturated rig
// earns nothing until heat is lowered outside this package. The catch-up is
// closed-form, so an arbitrary gap costs O(1).
package mining

import (
	"math"
	"time"

	"voltfarm/internal/domain"
)

// MaxHeat is the saturation point of the thermal throttle.
const MaxHeat = 100.0

// Canonical tuning values.
const (
	DefaultYieldPerGPUPerSecond = 0.0005
	DefaultSaturationPeriod     = 4 * time.Hour
	DefaultStreakResetAfter     = 48 * time.Hour
)

// Params are the tunable constants of the accrual law.
type Params struct {
	YieldPerGPUPerSecond float64
	// SaturationPeriod is how long a rig with cooling power 1 takes from 0 to MaxHeat.
	SaturationPeriod time.Duration
	// StreakResetAfter zeroes the check-in streak when the last check-in is older.
	StreakResetAfter time.Duration
}

// DefaultParams returns the canonical tuning.
func DefaultParams() Params {
	return Params{
		YieldPerGPUPerSecond: DefaultYieldPerGPUPerSecond,
		SaturationPeriod:     DefaultSaturationPeriod,
		StreakResetAfter:     DefaultStreakResetAfter,
	}
}

func (p Params) normalized() Params {
	d := DefaultParams()
	if p.YieldPerGPUPerSecond < 0 || math.IsNaN(p.YieldPerGPUPerSecond) {
		p.YieldPerGPUPerSecond = d.YieldPerGPUPerSecond
	}
	if p.SaturationPeriod <= 0 {
		p.SaturationPeriod = d.SaturationPeriod
	}
	if p.StreakResetAfter <= 0 {
		p.StreakResetAfter = d.StreakResetAfter
	}
	return p
}

// HeatRatePerSecond is the heat gained per second for the given cooling power.
func (p Params) HeatRatePerSecond(coolingPower float64) float64 {
	p = p.normalized()
	return MaxHeat / (p.SaturationPeriod.Seconds() * effectiveCooling(coolingPower))
}

func effectiveCooling(c float64) float64 {
	if c <= 0 || math.IsNaN(c) || math.IsInf(c, 0) {
		return 1
	}
	return c
}

func clampHeat(h float64) float64 {
	switch {
	case math.IsNaN(h) || h < 0:
		return 0
	case h > MaxHeat:
		return MaxHeat
	}
	return h
}

// ElapsedSeconds is the whole-second gap between from and now, never negative.
func ElapsedSeconds(from, now time.Time) float64 {
	if !now.After(from) {
		return 0
	}
	return math.Floor(now.Sub(from).Seconds())
}

// Reconcile advances st to now and returns the new state and the yield earned.
// The input is not modified. Calling it again with the same now earns nothing.
func Reconcile(st domain.MiningState, now time.Time, p Params) (domain.MiningState, float64) {
	p = p.normalized()

	elapsed := ElapsedSeconds(st.LastObservedAt, now)
	st.Heat = clampHeat(st.Heat)

	var earned float64
	if elapsed > 0 && st.Heat < MaxHeat {
		// seconds before saturation = (MaxHeat-heat) / rate, rate = MaxHeat / (period*cooling)
		saturation := p.SaturationPeriod.Seconds() * effectiveCooling(st.CoolingPower)
		untilSaturation := (MaxHeat - st.Heat) * saturation / MaxHeat

		active := math.Min(elapsed, untilSaturation)
		earned = active * float64(st.GPUCount) * p.YieldPerGPUPerSecond
		if earned < 0 {
			earned = 0
		}
		st.PendingYield += earned

		if elapsed >= untilSaturation {
			st.Heat = MaxHeat
		} else {
			st.Heat = math.Min(MaxHeat, st.Heat+elapsed*MaxHeat/saturation)
		}
	}

	if now.After(st.LastObservedAt) {
		st.LastObservedAt = now
	}

	if st.LastCheckInAt != nil && now.Sub(*st.LastCheckInAt) > p.StreakResetAfter {
		st.CheckInStreak = 0
	}

	return st, earned
}

// Forecast describes what a rig will do from its last observation onward.
type Forecast struct {
	YieldPerSecond    float64 `json:"yield_per_second"`
	HeatPerSecond     float64 `json:"heat_per_second"`
	SecondsToOverheat float64 `json:"seconds_to_overheat"`
	YieldToOverheat   float64 `json:"yield_to_overheat"`
	Overheated        bool    `json:"overheated"`
}

// Project returns the forecast for st as of st.LastObservedAt.
func Project(st domain.MiningState, p Params) Forecast {
	p = p.normalized()
	heat := clampHeat(st.Heat)
	f := Forecast{
		HeatPerSecond: p.HeatRatePerSecond(st.CoolingPower),
		Overheated:    heat >= MaxHeat,
	}
	if f.Overheated {
		return f
	}
	f.YieldPerSecond = float64(st.GPUCount) * p.YieldPerGPUPerSecond
	f.SecondsToOverheat = (MaxHeat - heat) * p.SaturationPeriod.Seconds() * effectiveCooling(st.CoolingPower) / MaxHeat
	f.YieldToOverheat = f.SecondsToOverheat * f.YieldPerSecond
	return f
}
