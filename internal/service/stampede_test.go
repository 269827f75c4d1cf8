package service

import (
	"sync"
	"testing"
)

func TestStampedeTracker_RecordMiss_RecordHit(t *testing.T) {
	st := newStampedeTracker()
	key := "weather:bucharest"

	if got := st.RecordMiss(key); got != 1 {
		t.Errorf("RecordMiss first = %d, want 1", got)
	}
	if got := st.RecordMiss(key); got != 2 {
		t.Errorf("RecordMiss second = %d, want 2", got)
	}
	st.RecordHit(key)
	if got := st.Active(key); got != 1 {
		t.Errorf("Active() after one hit = %d, want 1", got)
	}
	st.RecordHit(key)
	if got := st.Active(key); got != 0 {
		t.Errorf("Active() after all hits = %d, want 0", got)
	}
	// Unpaired hit must not go negative.
	st.RecordHit(key)
	if got := st.RecordMiss(key); got != 1 {
		t.Errorf("RecordMiss after unpaired hit = %d, want 1", got)
	}
}

func TestStampedeTracker_KeysIndependent(t *testing.T) {
	st := newStampedeTracker()
	st.RecordMiss("weather:cluj")
	if got := st.RecordMiss("forecast:cluj:5"); got != 1 {
		t.Errorf("RecordMiss other key = %d, want 1", got)
	}
}

func TestStampedeTracker_Concurrent(t *testing.T) {
	st := newStampedeTracker()
	key := "weather:iasi"
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.RecordMiss(key)
			st.RecordHit(key)
		}()
	}
	wg.Wait()
	if got := st.Active(key); got != 0 {
		t.Errorf("Active() after concurrent pairs = %d, want 0", got)
	}
}
