// Package webhook はIdPと決済プロバイダからのWebhookを受け付けるハンドラを提供する。
//
// どちらのハンドラも生のボディと署名ヘッダだけを入力とし、
// 署名検証に成功した場合に限りドメイン操作を呼び出す。
package webhook

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/ticketbox/internal/model"
)

// 応答結果のメトリクスラベル
const (
	outcomeProcessed = "processed"
	outcomeDuplicate = "duplicate"
	outcomeIgnored   = "ignored"
	outcomeRejected  = "rejected"
	outcomeFailed    = "failed"
)

// Recorder はWebhookの処理結果を記録する。metrics.Collectorが実装する。
type Recorder interface {
	RecordWebhook(provider, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) RecordWebhook(string, string) {}

// response はWebhookへの応答ボディ。Actionの結果と同じ {statusCode, success, data, error} の形。
type response struct {
	StatusCode int    `json:"statusCode"`
	Success    bool   `json:"success"`
	Data       any    `json:"data"`
	Error      string `json:"error,omitempty"`
}

// writeJSON はstatusCodeを実際のHTTPステータスに揃えて応答を書き込む。
func writeJSON(w http.ResponseWriter, status int, body response) {
	body.StatusCode = status
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// failureStatus はドメイン操作の失敗をHTTPステータスに変換する。
// 再送で回復しうる接続エラーは503、設定不備は500、それ以外は再送させないよう200で受領する。
func failureStatus(err error) int {
	switch model.KindOf(err) {
	case model.KindConnection:
		return http.StatusServiceUnavailable
	case model.KindConfiguration:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

// outcomeFor はステータスに応じたメトリクスラベルを返す。
func outcomeFor(status int) string {
	if status == http.StatusOK {
		return outcomeFailed
	}
	return outcomeRejected
}
