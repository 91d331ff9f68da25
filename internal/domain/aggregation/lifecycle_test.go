package aggregation

import "testing"

func TestNextStatus(t *testing.T) {
	cases := []struct {
		from Status
		ev   string
		want Status
		ok   bool
	}{
		{StatusOpen, "PAUSE", StatusPaused, true},
		{StatusOpen, "CLOSE", StatusClosed, true},
		{StatusOpen, "FINALIZE", StatusFinalized, true},
		{StatusOpen, "RESUME", StatusOpen, false},
		{StatusPaused, "RESUME", StatusOpen, true},
		{StatusPaused, "CLOSE", StatusClosed, true},
		{StatusPaused, "FINALIZE", StatusPaused, false},
		{StatusClosed, "RESUME", StatusClosed, false},
		{StatusFinalized, "CLOSE", StatusFinalized, false},
	}
	for _, tc := range cases {
		var ev = EventPause
		switch tc.ev {
		case "RESUME":
			ev = EventResume
		case "CLOSE":
			ev = EventClose
		case "FINALIZE":
			ev = EventFinalize
		}
		got, err := NextStatus(tc.from, ev)
		if tc.ok && err != nil {
			t.Fatalf("%s --%s--> unexpected error %v", tc.from, tc.ev, err)
		}
		if !tc.ok && !IsKind(err, KindInvalidTransition) {
			t.Fatalf("%s --%s--> expected INVALID_TRANSITION, got %v", tc.from, tc.ev, err)
		}
		if got != tc.want {
			t.Fatalf("%s --%s--> %s want %s", tc.from, tc.ev, got, tc.want)
		}
	}
}
