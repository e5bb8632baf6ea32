package traffic

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestRequestCount_Empty(t *testing.T) {
	tr := New(clockwork.NewFakeClock())
	if n := tr.RequestCount(time.Minute); n != 0 {
		t.Errorf("RequestCount() = %d, want 0", n)
	}
}

func TestRecordDenied_AndCounts(t *testing.T) {
	tr := New(clockwork.NewFakeClock())
	tr.RecordDenied()
	tr.RecordDenied()
	tr.RecordSuccess()
	if n := tr.DenialCount(time.Minute); n != 2 {
		t.Errorf("DenialCount() = %d, want 2", n)
	}
	if n := tr.RequestCount(time.Minute); n != 3 {
		t.Errorf("RequestCount() = %d, want 3", n)
	}
}

func TestErrorRate_DeniedExcluded(t *testing.T) {
	tr := New(clockwork.NewFakeClock())
	tr.RecordSuccess()
	tr.RecordSuccess()
	tr.RecordError()
	tr.RecordDenied()
	errs, total := tr.ErrorRate(time.Minute)
	if errs != 1 || total != 3 {
		t.Errorf("ErrorRate() = (%d, %d), want (1, 3)", errs, total)
	}
}

func TestErrorRate_Window(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := New(clock)
	tr.RecordError()
	clock.Advance(2 * time.Minute)
	tr.RecordSuccess()

	errs, total := tr.ErrorRate(time.Minute)
	if errs != 0 || total != 1 {
		t.Errorf("ErrorRate(1m) = (%d, %d), want (0, 1)", errs, total)
	}
	errs, total = tr.ErrorRate(5 * time.Minute)
	if errs != 1 || total != 2 {
		t.Errorf("ErrorRate(5m) = (%d, %d), want (1, 2)", errs, total)
	}
}

func TestPrune_DropsOldOutcomes(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := New(clock)
	tr.RecordError()
	clock.Advance(maxAge + time.Second)
	tr.RecordSuccess()

	if got := len(tr.errorTimes); got != 0 {
		t.Errorf("errorTimes retained %d entries, want 0", got)
	}
}

func TestDegraded(t *testing.T) {
	tests := []struct {
		name       string
		successes  int
		errors     int
		minSamples int
		want       bool
	}{
		{"no samples", 0, 0, 1, false},
		{"below min samples", 0, 2, 5, false},
		{"at threshold", 5, 5, 5, true},
		{"below threshold", 9, 1, 5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(clockwork.NewFakeClock())
			for i := 0; i < tt.successes; i++ {
				tr.RecordSuccess()
			}
			for i := 0; i < tt.errors; i++ {
				tr.RecordError()
			}
			if got := tr.Degraded(time.Minute, 0.5, tt.minSamples); got != tt.want {
				t.Errorf("Degraded() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReset(t *testing.T) {
	tr := New(nil)
	tr.RecordSuccess()
	tr.RecordError()
	tr.RecordDenied()
	tr.Reset()
	if n := tr.RequestCount(time.Minute); n != 0 {
		t.Errorf("RequestCount() after Reset = %d, want 0", n)
	}
}
