package clerk

import "time"

// callResult はHTTPステータスコードに基づくAPI呼び出し結果の分類。
type callResult int

const (
	// callOK は成功（2xx）。
	callOK callResult = iota
	// callRetry は再試行で回復しうる失敗（429/5xx）。
	callRetry
	// callFail は再試行しても回復しない失敗（その他の4xxなど）。
	callFail
)

const (
	// maxAttempts は1回の呼び出しで行う最大試行回数。
	maxAttempts = 3
	// initialBackoff は指数バックオフの初回遅延。
	initialBackoff = 200 * time.Millisecond
	// maxBackoff は指数バックオフの最大遅延。
	maxBackoff = 2 * time.Second
)

// classifyStatus はHTTPステータスコードを呼び出し結果に分類する。
func classifyStatus(statusCode int) callResult {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return callOK
	case statusCode == 429:
		return callRetry
	case statusCode >= 500:
		return callRetry
	default:
		return callFail
	}
}

// backoff は失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回200ms、2倍ずつ増加、最大2秒。
func backoff(failures int) time.Duration {
	delay := initialBackoff
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
