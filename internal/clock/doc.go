// Package clock provides the logical clock that drives every timeout and
// periodic behavior. Time is measured in ticks, never wall-clock, so runs are
// deterministic under replay.
package clock
