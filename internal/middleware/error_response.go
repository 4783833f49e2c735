package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/ticketbox/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// ドメイン操作の結果エンベロープと同じ形を取る。
type ErrorResponseBody struct {
	StatusCode int    `json:"statusCode"`
	Success    bool   `json:"success"`
	Error      string `json:"error"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		StatusCode: statusCode,
		Success:    false,
		Error:      message,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、呼び出し元には一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, "internal server error")
}

// StatusForKind はエラー分類をHTTPステータスに変換する。
func StatusForKind(kind model.ErrorKind) int {
	switch kind {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindVerification:
		return http.StatusUnauthorized
	case model.KindAuthorization:
		return http.StatusForbidden
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindDuplicateKey:
		return http.StatusConflict
	case model.KindConnection:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
