// Package clock provides the time source and day-based date arithmetic used by the
// subscription engine.
//
// All period math in the engine is expressed in whole days, so the helpers here
// stay deliberately small: AddDays moves a timestamp by calendar days, DiffInDays
// returns the number of full days between two instants, and Clock abstracts "now"
// so lifecycle rules can be exercised with a fixed or advancing time in tests.
//
// # Usage
//
//	c := clock.Real()
//	expires := clock.AddDays(c.Now(), 30)
//
// In tests:
//
//	m := clock.NewMock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
//	m.Advance(48 * time.Hour)
//	clock.DiffInDays(start, m.Now()) // 2
package clock
