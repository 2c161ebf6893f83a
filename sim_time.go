package malariago

import "fmt"

// DaysInYear is the number of days in a simulated year. Leap years are
// not simulated.
const DaysInYear = 365

// SimTime is a count of days, used both for durations and for absolute
// times measured since the start of the simulation. The reserved values
// Never and Future sort below and above every reachable simulation time,
// and arithmetic involving them saturates instead of overflowing.
type SimTime int32

const (
	// Never is a time point always in the past: Never + x < 0 for every
	// valid simulation time x.
	Never SimTime = -0x3FFFFFFF
	// Future is a time point always in the future: x < Future and
	// x + Future does not overflow for every valid simulation time x.
	Future SimTime = 0x3FFFFFFF
)

// ZeroTime is the zero duration.
const ZeroTime SimTime = 0

// OneDay is a duration of a single day.
const OneDay SimTime = 1

// OneYear is a duration of one year. See DaysInYear.
const OneYear SimTime = DaysInYear

// FromDays creates a SimTime from a whole number of days.
func FromDays(days int) SimTime { return SimTime(days) }

// FromYears creates a SimTime from a whole number of years.
func FromYears(years int) SimTime { return SimTime(years * DaysInYear) }

// IsNever reports whether t is at or below the Never sentinel.
func (t SimTime) IsNever() bool { return t <= Never }

// IsFuture reports whether t is at or above the Future sentinel.
func (t SimTime) IsFuture() bool { return t >= Future }

func (t SimTime) sentinel() bool { return t.IsNever() || t.IsFuture() }

// Add returns t + rhs. If either operand is a sentinel the result
// saturates to that sentinel instead of wrapping.
func (t SimTime) Add(rhs SimTime) SimTime {
	if t.IsNever() || rhs.IsNever() {
		return Never
	}
	if t.IsFuture() || rhs.IsFuture() {
		return Future
	}
	s := t + rhs
	if s <= Never {
		return Never
	}
	if s >= Future {
		return Future
	}
	return s
}

// Sub returns t - rhs with the same saturation rules as Add.
func (t SimTime) Sub(rhs SimTime) SimTime { return t.Add(-rhs) }

// Mul scales a duration by an integer, saturating on sentinels.
func (t SimTime) Mul(scalar int) SimTime {
	if t.sentinel() {
		return t
	}
	p := int64(t) * int64(scalar)
	if p <= int64(Never) {
		return Never
	}
	if p >= int64(Future) {
		return Future
	}
	return SimTime(p)
}

// MulFloat scales a duration by a float, rounding to the nearest day.
func (t SimTime) MulFloat(scalar float64) SimTime {
	if t.sentinel() {
		return t
	}
	p := float64(t)*scalar + 0.5
	if p <= float64(Never) {
		return Never
	}
	if p >= float64(Future) {
		return Future
	}
	return SimTime(p)
}

// Div divides one duration by another; the result is unitless. Integer
// division, as with the raw day counts.
func (t SimTime) Div(rhs SimTime) int { return int(t) / int(rhs) }

// InDays returns the length of time in days.
func (t SimTime) InDays() int { return int(t) }

// InYears converts to (fractional) years.
func (t SimTime) InYears() float64 { return float64(t) * (1.0 / DaysInYear) }

func (t SimTime) String() string {
	if t.IsNever() {
		return "never"
	}
	if t.IsFuture() {
		return "future"
	}
	return fmt.Sprintf("%dd", int(t))
}

// ModNN is modular arithmetic restricted to non-negative lhs and positive
// rhs. The result is in [0, rhs) and lhs - ModNN(lhs, rhs) is divisible
// by rhs.
func ModNN(lhs, rhs SimTime) SimTime {
	if lhs < 0 || rhs <= 0 {
		panic(fmt.Sprintf("mod_nn: bad operands %d mod %d", lhs, rhs))
	}
	return lhs % rhs
}

// Mod is modular arithmetic supporting negative lhs:
// Mod(a+n, n) == Mod(a, n) for negative a as well.
func Mod(lhs, rhs SimTime) SimTime {
	if rhs <= 0 {
		panic(fmt.Sprintf("mod: non-positive denominator %d", rhs))
	}
	r := lhs % rhs
	if r < 0 {
		r += rhs
	}
	return r
}

// Clock tracks simulation time. During a step update the time at the
// start of the step (Ts0) and at the end (Ts1) differ by one step;
// outside updates they coincide and Now is valid. The step length is
// fixed at scenario start to either one or five days.
type Clock struct {
	interval     SimTime // days per time step
	stepsPerYear int
	yearsPerStep float64
	maxHumanAge  SimTime

	time0      SimTime
	time1      SimTime
	intervTime SimTime
	inUpdate   bool
}

// NewClock creates a clock with the given days per time step (1 or 5)
// and maximum human age in years.
func NewClock(daysPerStep int, maxHumanAgeYears float64) (*Clock, error) {
	if daysPerStep != 1 && daysPerStep != 5 {
		return nil, fmt.Errorf(InvalidIntParameterError, "days_per_step", daysPerStep, "must be 1 or 5")
	}
	c := new(Clock)
	c.interval = SimTime(daysPerStep)
	c.stepsPerYear = DaysInYear / daysPerStep
	c.yearsPerStep = float64(daysPerStep) / DaysInYear
	c.maxHumanAge = OneYear.MulFloat(maxHumanAgeYears)
	c.intervTime = Never
	return c, nil
}

// OneTS returns the duration of one time step.
func (c *Clock) OneTS() SimTime { return c.interval }

// StepsPerYear returns the number of time steps in one year.
func (c *Clock) StepsPerYear() int { return c.stepsPerYear }

// YearsPerStep returns one year divided by one time step.
func (c *Clock) YearsPerStep() float64 { return c.yearsPerStep }

// MaxHumanAge returns the age at which humans are removed.
func (c *Clock) MaxHumanAge() SimTime { return c.maxHumanAge }

// Ts0 is the time at the beginning of a time step update. Only valid
// during updates.
func (c *Clock) Ts0() SimTime {
	if !c.inUpdate {
		panic("clock: ts0 used outside update")
	}
	return c.time0
}

// Ts1 is the time at the end of a time step update. During an update
// Ts0 + OneTS == Ts1. Only valid during updates.
func (c *Clock) Ts1() SimTime {
	if !c.inUpdate {
		panic("clock: ts1 used outside update")
	}
	return c.time1
}

// Now is the time during init, monitoring and intervention deployment,
// i.e. whenever an update is not in progress.
func (c *Clock) Now() SimTime {
	if c.inUpdate {
		panic("clock: now used during update")
	}
	return c.time0
}

// NowOrTs0 is Ts0 during updates and Now between them.
func (c *Clock) NowOrTs0() SimTime { return c.time0 }

// NowOrTs1 is Ts1 during updates and Now between them.
func (c *Clock) NowOrTs1() SimTime { return c.time1 }

// IntervNow is time relative to the intervention period: a large
// negative value until the intervention period starts.
func (c *Clock) IntervNow() SimTime { return c.intervTime }

// StartIntervPeriod zeroes the intervention-period clock.
func (c *Clock) StartIntervPeriod() { c.intervTime = ZeroTime }

// StartUpdate begins a time step update: Ts1 advances to Ts0 + OneTS.
func (c *Clock) StartUpdate() {
	c.time1 = c.time0.Add(c.interval)
	c.inUpdate = true
}

// EndUpdate ends a time step update: Ts0 catches up with Ts1 and the
// clock returns to the between-steps phase.
func (c *Clock) EndUpdate() {
	c.time0 = c.time1
	if !c.intervTime.IsNever() {
		c.intervTime = c.intervTime.Add(c.interval)
	}
	c.inUpdate = false
}

// FromTS converts a number of time steps to a duration.
func (c *Clock) FromTS(ts int) SimTime { return c.interval.Mul(ts) }

// InSteps converts a duration to time steps, rounding down.
func (c *Clock) InSteps(t SimTime) int { return int(t) / int(c.interval) }

// FromYearsN converts from years to the nearest time step.
func (c *Clock) FromYearsN(years float64) SimTime {
	return c.RoundToTSFromDays(DaysInYear * years)
}

// FromYearsD converts from years, rounding down to the next time step.
func (c *Clock) FromYearsD(years float64) SimTime {
	steps := int(float64(c.stepsPerYear) * years)
	return c.FromTS(steps)
}

// RoundToTSFromDays rounds a day count to the nearest time step.
func (c *Clock) RoundToTSFromDays(days float64) SimTime {
	return c.FromTS(int(days/float64(c.interval) + 0.5))
}

// ModuloSteps returns t in time steps modulo a positive denominator.
func (c *Clock) ModuloSteps(t SimTime, denominator int) int {
	return int(ModNN(SimTime(c.InSteps(t)), SimTime(denominator)))
}

// ModuloYearSteps returns t in time steps modulo the steps in a year.
func (c *Clock) ModuloYearSteps(t SimTime) int {
	return c.ModuloSteps(t, c.stepsPerYear)
}
