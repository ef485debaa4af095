package worker

import (
	"context"
	"errors"
	"time"
)

// Стратегии backoff.
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// RetryPolicy — повторы вызова исполнителя.
type RetryPolicy struct {
	// MaxAttempts — всего попыток, включая первую (default: 1).
	MaxAttempts int

	// Backoff — "fixed" или "exponential".
	Backoff string

	// InitialDelay — первая задержка (default: 1s).
	InitialDelay time.Duration

	// MaxDelay — верхняя граница задержки (default: 30s).
	MaxDelay time.Duration

	// OnStatus — HTTP-коды, при которых логическая ошибка повторяется.
	// Пусто — повторять любую логическую ошибку.
	OnStatus []int
}

// shouldRetry определяет, нужно ли делать retry.
func shouldRetry(result *Result, err error, policy RetryPolicy) bool {
	if err != nil {
		// Конфигурационные ошибки и отмена не лечатся повтором
		if errors.Is(err, ErrNoEndpoint) || errors.Is(err, context.Canceled) {
			return false
		}
		return true
	}

	if result != nil && len(policy.OnStatus) > 0 {
		if code, ok := result.Output["status_code"].(int); ok {
			return shouldRetryHTTPStatus(code, policy.OnStatus)
		}
		return false
	}

	return true
}

// shouldRetryHTTPStatus проверяет, входит ли HTTP-код в список для retry.
func shouldRetryHTTPStatus(statusCode int, onStatus []int) bool {
	for _, code := range onStatus {
		if statusCode == code {
			return true
		}
	}
	return false
}

// calculateBackoff вычисляет задержку перед попыткой attempt+1.
func calculateBackoff(attempt int, policy RetryPolicy) time.Duration {
	initialDelay := policy.InitialDelay
	if initialDelay <= 0 {
		initialDelay = time.Second
	}

	maxDelay := policy.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	delay := initialDelay
	if policy.Backoff == BackoffExponential {
		// delay = initialDelay * 2^(attempt-1)
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay > maxDelay {
				break
			}
		}
	}

	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}
