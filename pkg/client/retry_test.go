package client

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fastRetry keeps backoff short so tests run quickly.
func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    5 * time.Millisecond,
		MaxBackoff:        20 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", config.MaxAttempts)
	}
	if config.InitialBackoff != 1*time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", config.InitialBackoff)
	}
	if config.MaxBackoff != 30*time.Second {
		t.Errorf("MaxBackoff = %v, want 30s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestRetryConfig_Normalize(t *testing.T) {
	tests := []struct {
		name  string
		input RetryConfig
		want  RetryConfig
	}{
		{
			name:  "zero config uses defaults",
			input: RetryConfig{},
			want:  DefaultRetryConfig(),
		},
		{
			name: "max below initial is raised",
			input: RetryConfig{
				MaxAttempts:       2,
				InitialBackoff:    10 * time.Second,
				MaxBackoff:        1 * time.Second,
				BackoffMultiplier: 3,
			},
			want: RetryConfig{
				MaxAttempts:       2,
				InitialBackoff:    10 * time.Second,
				MaxBackoff:        10 * time.Second,
				BackoffMultiplier: 3,
			},
		},
		{
			name: "shrinking multiplier replaced",
			input: RetryConfig{
				MaxAttempts:       1,
				InitialBackoff:    time.Second,
				MaxBackoff:        time.Minute,
				BackoffMultiplier: 0.5,
			},
			want: RetryConfig{
				MaxAttempts:       1,
				InitialBackoff:    time.Second,
				MaxBackoff:        time.Minute,
				BackoffMultiplier: 2.0,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.input.normalize(); got != tt.want {
				t.Errorf("normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), fastRetry(), func() (ErrorClass, error) {
		callCount++
		return "", nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestRetryWithBackoff_SuccessAfterRetry(t *testing.T) {
	// Fails twice, then succeeds
	callCount := 0
	err := retryWithBackoff(context.Background(), fastRetry(), func() (ErrorClass, error) {
		callCount++
		if callCount < 3 {
			return ErrorClassServer, errors.New("temporary error")
		}
		return "", nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}
}

func TestRetryWithBackoff_MaxAttemptsExhausted(t *testing.T) {
	callCount := 0
	testErr := errors.New("persistent error")
	err := retryWithBackoff(context.Background(), fastRetry(), func() (ErrorClass, error) {
		callCount++
		return ErrorClassNetwork, testErr
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, testErr) {
		t.Errorf("Expected wrapped original error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls (MaxAttempts), got %d", callCount)
	}
}

func TestRetryWithBackoff_ClientErrorNoRetry(t *testing.T) {
	callCount := 0
	testErr := errors.New("client error")
	err := retryWithBackoff(context.Background(), fastRetry(), func() (ErrorClass, error) {
		callCount++
		return ErrorClassClient, testErr
	})

	if callCount != 1 {
		t.Errorf("Expected 1 call (no retry for client errors), got %d", callCount)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("Should not return ErrRetryExhausted for client errors (no retry attempted)")
	}
	if !errors.Is(err, testErr) {
		t.Errorf("Expected original error, got %v", err)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	callCount := 0
	err := retryWithBackoff(ctx, RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
	}, func() (ErrorClass, error) {
		callCount++
		if callCount == 1 {
			cancel()
		}
		return ErrorClassServer, errors.New("error")
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected wrapped context.Canceled, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", callCount)
	}
}

func TestRetryWithBackoff_ExponentialBackoff(t *testing.T) {
	timestamps := []time.Time{}
	_ = retryWithBackoff(context.Background(), RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    20 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2.0,
	}, func() (ErrorClass, error) {
		timestamps = append(timestamps, time.Now())
		return ErrorClassServer, errors.New("error")
	})

	if len(timestamps) != 3 {
		t.Fatalf("Expected 3 attempts, got %d", len(timestamps))
	}

	// Jitter is ±20%: first gap >= 16ms, second gap >= 32ms
	first := timestamps[1].Sub(timestamps[0])
	second := timestamps[2].Sub(timestamps[1])
	if first < 16*time.Millisecond {
		t.Errorf("first backoff = %v, want >= 16ms", first)
	}
	if second < 32*time.Millisecond {
		t.Errorf("second backoff = %v, want >= 32ms", second)
	}
}
