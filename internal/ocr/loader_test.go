package ocr

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andresmejia3/assetcam/internal/types"
)

type stubEngine struct {
	text   string
	err    error
	events []types.Progress
}

func (s *stubEngine) Recognize(ctx context.Context, img *types.CapturedImage, onProgress func(types.Progress)) (string, error) {
	for _, e := range s.events {
		if onProgress != nil {
			onProgress(e)
		}
	}
	return s.text, s.err
}

func TestLoader_ConcurrentCallersShareOneLoad(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	engine := &stubEngine{text: "ok"}

	l := NewLoader(func(ctx context.Context) (Engine, error) {
		calls.Add(1)
		<-release
		return engine, nil
	}, RetryOnFailure, nil)

	const n = 16
	var wg sync.WaitGroup
	results := make([]Engine, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = l.Ensure(context.Background())
		}(i)
	}

	// Let every goroutine attach before the load finishes.
	deadline := time.Now().Add(2 * time.Second)
	for l.State() != Loading && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("Expected 1 load, got %d", got)
	}
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d: unexpected error %v", i, errs[i])
		}
		if results[i] != engine {
			t.Errorf("caller %d got a different engine", i)
		}
	}
	if l.State() != Loaded {
		t.Errorf("Expected state loaded, got %s", l.State())
	}
}

func TestLoader_LoadedReturnsImmediately(t *testing.T) {
	var calls atomic.Int32
	l := NewLoader(func(ctx context.Context) (Engine, error) {
		calls.Add(1)
		return &stubEngine{}, nil
	}, RetryOnFailure, nil)

	for i := 0; i < 3; i++ {
		if _, err := l.Ensure(context.Background()); err != nil {
			t.Fatalf("Ensure: %v", err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("Expected 1 load, got %d", got)
	}
}

func TestLoader_FailurePolicy(t *testing.T) {
	tests := []struct {
		name         string
		policy       FailurePolicy
		wantAttempts int32
		wantState    LoaderState
	}{
		{"retry starts a new attempt", RetryOnFailure, 2, Unloaded},
		{"pin keeps the first failure", PinFailure, 1, Failed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cause := errors.New("script fetch failed")
			var calls atomic.Int32
			l := NewLoader(func(ctx context.Context) (Engine, error) {
				calls.Add(1)
				return nil, cause
			}, tt.policy, nil)

			for i := 0; i < 2; i++ {
				_, err := l.Ensure(context.Background())
				if !errors.Is(err, ErrEngineLoad) {
					t.Fatalf("Expected ErrEngineLoad, got %v", err)
				}
				if !errors.Is(err, cause) {
					t.Errorf("Expected the cause to be wrapped, got %v", err)
				}
				if msg := types.UserMessage(err, ""); msg != ErrEngineLoad.Message {
					t.Errorf("Expected user message %q, got %q", ErrEngineLoad.Message, msg)
				}
			}

			if got := calls.Load(); got != tt.wantAttempts {
				t.Errorf("Expected %d attempts, got %d", tt.wantAttempts, got)
			}
			if got := l.State(); got != tt.wantState {
				t.Errorf("Expected state %s, got %s", tt.wantState, got)
			}
		})
	}
}

func TestLoader_RetryRecovers(t *testing.T) {
	var calls atomic.Int32
	engine := &stubEngine{}
	l := NewLoader(func(ctx context.Context) (Engine, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("offline")
		}
		return engine, nil
	}, RetryOnFailure, nil)

	if _, err := l.Ensure(context.Background()); err == nil {
		t.Fatal("Expected first load to fail")
	}
	got, err := l.Ensure(context.Background())
	if err != nil {
		t.Fatalf("Expected second load to succeed, got %v", err)
	}
	if got != engine {
		t.Error("Expected the loaded engine")
	}
}

func TestLoader_NilEngineIsFailure(t *testing.T) {
	l := NewLoader(func(ctx context.Context) (Engine, error) { return nil, nil }, RetryOnFailure, nil)
	if _, err := l.Ensure(context.Background()); !errors.Is(err, ErrEngineLoad) {
		t.Errorf("Expected ErrEngineLoad, got %v", err)
	}
}

func TestLoader_CancelStopsWaitNotLoad(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})
	engine := &stubEngine{}
	l := NewLoader(func(ctx context.Context) (Engine, error) {
		defer close(finished)
		<-release
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return engine, nil
	}, RetryOnFailure, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := l.Ensure(ctx)
		errc <- err
	}()

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}

	close(release)
	<-finished

	got, err := l.Ensure(context.Background())
	if err != nil || got != engine {
		t.Errorf("Expected the shared load to complete, got %v, %v", got, err)
	}
}

func TestParseFailurePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    FailurePolicy
		wantErr bool
	}{
		{"", RetryOnFailure, false},
		{"retry", RetryOnFailure, false},
		{"pin", PinFailure, false},
		{"forever", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFailurePolicy(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFailurePolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFailurePolicy(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
