package startup

import (
	"os"
	"time"

	"github.com/convo/internal/logger"
)

const maxBackoff = 30 * time.Second

// retryUntil повторяет attempt с экспоненциальной паузой (2s, 4s, ... до 30s),
// пока тот не вернёт nil. После maxWait процесс завершается: без зависимости сервис не стартует.
func retryUntil(what string, maxWait time.Duration, logPrefix string, attempt func() error) {
	deadline := time.Now().Add(maxWait)
	backoff := 2 * time.Second
	for {
		err := attempt()
		if err == nil {
			return
		}
		if time.Now().After(deadline) {
			logger.Errorf("%s%s (gave up after %v): %v", logPrefix, what, maxWait, err)
			os.Exit(1)
		}
		logger.Errorf("%s%s not ready, retry in %v: %v", logPrefix, what, backoff, err)
		time.Sleep(backoff)
		backoff = min(backoff*2, maxBackoff)
	}
}
