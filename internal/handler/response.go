package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/hitoshi/ticketbox/internal/action"
	"github.com/hitoshi/ticketbox/internal/middleware"
	"github.com/hitoshi/ticketbox/internal/model"
)

// maxRequestBodyBytes はリクエストボディの上限サイズ。
const maxRequestBodyBytes = 1 << 20

// writeResult は操作結果のエンベロープをHTTPレスポンスとして書き込む。
// エンベロープのstatusCodeは実際のHTTPステータスに書き換える。
// 成功時はsuccessStatus、失敗時はエラー分類から決まるステータスを使う。
func writeResult[T any](w http.ResponseWriter, successStatus int, res action.Result[T]) {
	status := successStatus
	if !res.Success {
		status = middleware.StatusForKind(res.Kind())
	}
	res.StatusCode = status
	writeJSON(w, status, res)
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError はエラー分類に応じたステータスでエラーレスポンスを書き込む。
func writeError(w http.ResponseWriter, err error) {
	middleware.WriteErrorResponse(w, middleware.StatusForKind(model.KindOf(err)), err.Error())
}

// decodeJSON はリクエストボディをデコードする。失敗した場合はValidationErrorを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return model.NewValidationError("body", "request body too large")
		}
		if errors.Is(err, io.EOF) {
			return model.NewValidationError("body", "request body is empty")
		}
		return model.NewValidationError("body", "malformed JSON")
	}
	return nil
}

// queryInt はクエリパラメータを整数として読み取る。未指定や不正値の場合は0を返す。
// 0は各操作で既定値に置き換えられる。
func queryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return v
}

// requireUserID はコンテキストの認証済みユーザーIDを返す。
// 取得できない場合は401を書き込み、falseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return userID, true
}
