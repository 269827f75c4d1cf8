package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/weather-advisory-service/internal/models"
)

func TestRequestCoalescer_GetOrDo_ConcurrentRequests(t *testing.T) {
	coalescer := newRequestCoalescer[models.WeatherSnapshot](5 * time.Second)
	var calls int32
	release := make(chan struct{})

	fn := func(context.Context) (models.WeatherSnapshot, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return models.WeatherSnapshot{City: "Bucharest", Temperature: 10}, nil
	}

	const n = 10
	var wg sync.WaitGroup
	var started sync.WaitGroup
	results := make([]models.WeatherSnapshot, n)
	errs := make([]error, n)
	shared := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		started.Add(1)
		go func(idx int) {
			defer wg.Done()
			started.Done()
			results[idx], shared[idx], errs[idx] = coalescer.GetOrDo(context.Background(), "weather:bucharest", fn)
		}(i)
	}
	started.Wait()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	sharedCount := 0
	for i := range results {
		if errs[i] != nil {
			t.Errorf("request %d error = %v", i, errs[i])
		}
		if results[i].City != "Bucharest" {
			t.Errorf("request %d city = %q", i, results[i].City)
		}
		if shared[i] {
			sharedCount++
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fn calls = %d, want 1", got)
	}
	if sharedCount != n-1 {
		t.Errorf("shared callers = %d, want %d", sharedCount, n-1)
	}
}

func TestRequestCoalescer_GetOrDo_ErrorPropagation(t *testing.T) {
	coalescer := newRequestCoalescer[models.ForecastSet](5 * time.Second)
	wantErr := errors.New("api failure")
	release := make(chan struct{})

	fn := func(context.Context) (models.ForecastSet, error) {
		<-release
		return models.ForecastSet{}, wantErr
	}

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, _, errs[idx] = coalescer.GetOrDo(context.Background(), "forecast:cluj:2", fn)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, wantErr) {
			t.Errorf("request %d error = %v, want %v", i, err, wantErr)
		}
	}
}

func TestRequestCoalescer_GetOrDo_Timeout(t *testing.T) {
	coalescer := newRequestCoalescer[models.WeatherSnapshot](50 * time.Millisecond)
	release := make(chan struct{})
	defer close(release)

	fn := func(context.Context) (models.WeatherSnapshot, error) {
		<-release
		return models.WeatherSnapshot{}, nil
	}

	_, _, err := coalescer.GetOrDo(context.Background(), "weather:slow", fn)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("GetOrDo() error = %v, want deadline exceeded", err)
	}
}

func TestRequestCoalescer_FetchSurvivesCallerCancel(t *testing.T) {
	coalescer := newRequestCoalescer[models.WeatherSnapshot](time.Second)
	release := make(chan struct{})
	var fetchErr atomic.Value

	fn := func(ctx context.Context) (models.WeatherSnapshot, error) {
		<-release
		if err := ctx.Err(); err != nil {
			fetchErr.Store(err)
		}
		return models.WeatherSnapshot{City: "Brasov"}, nil
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := coalescer.GetOrDo(leaderCtx, "weather:brasov", fn)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)

	followerDone := make(chan models.WeatherSnapshot, 1)
	go func() {
		got, _, _ := coalescer.GetOrDo(context.Background(), "weather:brasov", fn)
		followerDone <- got
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("leader error = %v, want canceled", err)
	}
	close(release)

	got := <-followerDone
	if got.City != "Brasov" {
		t.Errorf("follower got %+v, want Brasov", got)
	}
	if v := fetchErr.Load(); v != nil {
		t.Errorf("fetch context was canceled: %v", v)
	}
}

func TestRequestCoalescer_GetOrDo_DifferentKeys(t *testing.T) {
	coalescer := newRequestCoalescer[models.WeatherSnapshot](5 * time.Second)
	var calls int32

	fn := func(context.Context) (models.WeatherSnapshot, error) {
		atomic.AddInt32(&calls, 1)
		return models.WeatherSnapshot{}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, _, _ = coalescer.GetOrDo(context.Background(), key, fn)
		}("weather:city" + string(rune('a'+i)))
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 5 {
		t.Errorf("fn calls = %d, want 5 (no coalescing for different keys)", got)
	}
}

func TestRequestCoalescer_CleansUpAfterCompletion(t *testing.T) {
	coalescer := newRequestCoalescer[models.WeatherSnapshot](time.Second)
	var calls int32
	fn := func(context.Context) (models.WeatherSnapshot, error) {
		atomic.AddInt32(&calls, 1)
		return models.WeatherSnapshot{}, nil
	}

	_, _, _ = coalescer.GetOrDo(context.Background(), "weather:x", fn)
	// cleanup runs after done is closed; wait for it.
	deadline := time.Now().Add(time.Second)
	for {
		coalescer.mu.Lock()
		n := len(coalescer.inFlight)
		coalescer.mu.Unlock()
		if n == 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	_, shared, _ := coalescer.GetOrDo(context.Background(), "weather:x", fn)
	if shared {
		t.Error("second sequential call joined a finished fetch")
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("fn calls = %d, want 2", got)
	}
}
