package malariago

import "testing"

func TestSimTimeSentinels(t *testing.T) {
	maxAge := FromYears(90)
	stepsPerYear := DaysInYear
	// never + steps_per_year * max_age_years < 0 for any reachable time
	if v := Never.Add(FromDays(stepsPerYear).Mul(90)); v >= 0 {
		t.Errorf("never + max simulated duration = %s, expected a negative time", v)
	}
	if v := maxAge.Add(Future); v < maxAge {
		t.Errorf("now + future overflowed to %s", v)
	}
	if !Never.IsNever() {
		t.Error("Never.IsNever() is false")
	}
	if !Future.IsFuture() {
		t.Error("Future.IsFuture() is false")
	}
	if Never.IsFuture() || Future.IsNever() {
		t.Error("sentinel predicates overlap")
	}
}

func TestSimTimeSaturation(t *testing.T) {
	cases := []struct {
		lhs, rhs, exp SimTime
	}{
		{Never, FromDays(100000), Never},
		{Future, FromDays(-100000), Future},
		{Never, Never, Never},
		{Future, Future, Future},
		{FromDays(3), FromDays(4), FromDays(7)},
	}
	for _, c := range cases {
		if got := c.lhs.Add(c.rhs); got != c.exp {
			t.Errorf(UnequalIntParameterError, "sum", int(c.exp), int(got))
		}
	}
	// a sentinel stays a sentinel under scaling
	if got := Never.Mul(3); got != Never {
		t.Errorf("never * 3 = %s", got)
	}
	if got := Future.MulFloat(0.5); got != Future {
		t.Errorf("future * 0.5 = %s", got)
	}
}

func TestSimTimeConversions(t *testing.T) {
	if exp := 730; exp != FromYears(2).InDays() {
		t.Errorf(UnequalIntParameterError, "days in two years", exp, FromYears(2).InDays())
	}
	if exp := 2.0; exp != FromYears(2).InYears() {
		t.Errorf(UnequalFloatParameterError, "years", exp, FromYears(2).InYears())
	}
	if exp := FromDays(10); exp != FromDays(5).Mul(2) {
		t.Errorf(UnequalIntParameterError, "scaled duration", int(exp), int(FromDays(5).Mul(2)))
	}
	if exp := 3; exp != FromDays(17).Div(FromDays(5)) {
		t.Errorf(UnequalIntParameterError, "duration ratio", exp, FromDays(17).Div(FromDays(5)))
	}
}

func TestModNN(t *testing.T) {
	for _, lhs := range []SimTime{0, 1, 4, 5, 17, 365, 3650} {
		for _, rhs := range []SimTime{1, 5, 7, 73} {
			m := ModNN(lhs, rhs)
			if m < 0 || m >= rhs {
				t.Errorf("mod_nn(%d, %d) = %d out of [0, %d)", lhs, rhs, m, rhs)
			}
			if (lhs-m)%rhs != 0 {
				t.Errorf("mod_nn(%d, %d): %d - %d is not divisible by %d", lhs, rhs, lhs, m, rhs)
			}
		}
	}
}

func TestModNegative(t *testing.T) {
	for _, lhs := range []SimTime{-10, -1, 0, 1, 10} {
		for _, rhs := range []SimTime{1, 5, 7} {
			m := Mod(lhs, rhs)
			if m < 0 || m >= rhs {
				t.Errorf("mod(%d, %d) = %d out of [0, %d)", lhs, rhs, m, rhs)
			}
			if Mod(lhs+rhs, rhs) != m {
				t.Errorf("mod(%d+%d, %d) != mod(%d, %d)", lhs, rhs, rhs, lhs, rhs)
			}
		}
	}
}

func TestClockStepPhases(t *testing.T) {
	clock, err := NewClock(5, 90)
	if err != nil {
		t.Fatal(err)
	}
	if exp := 73; exp != clock.StepsPerYear() {
		t.Errorf(UnequalIntParameterError, "steps per year", exp, clock.StepsPerYear())
	}

	clock.StartUpdate()
	if clock.Ts1() != clock.Ts0().Add(clock.OneTS()) {
		t.Errorf("ts1 != ts0 + one step during update")
	}
	clock.EndUpdate()
	if clock.Now() != FromDays(5) {
		t.Errorf(UnequalIntParameterError, "time after one step", 5, clock.Now().InDays())
	}

	// ts0 must not be readable outside an update
	defer func() {
		if recover() == nil {
			t.Error("expected panic reading ts0 outside an update")
		}
	}()
	clock.Ts0()
}

func TestClockInterval(t *testing.T) {
	if _, err := NewClock(3, 90); err == nil {
		t.Errorf(ExpectedErrorWhileError, "creating a clock with a 3-day step")
	}
	clock, err := NewClock(1, 90)
	if err != nil {
		t.Fatal(err)
	}
	if exp := FromDays(21); exp != clock.FromTS(21) {
		t.Errorf(UnequalIntParameterError, "duration of 21 steps", int(exp), int(clock.FromTS(21)))
	}
	if exp := FromDays(365); exp != clock.FromYearsN(1.0) {
		t.Errorf(UnequalIntParameterError, "one year in days", int(exp), int(clock.FromYearsN(1.0)))
	}
}
