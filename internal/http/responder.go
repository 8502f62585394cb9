package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/lounge-reconciler/internal/scheduler"
)

var (
	errMissingJobName = errors.New("ジョブ名を指定してください。")
	errMissingToken   = errors.New("認証トークンを指定してください")
	errInvalidToken   = errors.New("認証トークンが無効です。")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := localizedStatusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

// handleRunError maps errors raised before a job produced a report.
func (r responder) handleRunError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{ErrorCode: "JOB_NOT_FOUND", Message: "指定されたジョブが見つかりません。"})
	case errors.Is(err, scheduler.ErrJobRunning):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: "JOB_RUNNING", Message: "ジョブは実行中です。"})
	case errors.Is(err, scheduler.ErrLockHeld):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: "JOB_LOCKED", Message: "ジョブは別のインスタンスで実行中です。"})
	case errors.Is(err, context.DeadlineExceeded):
		r.writeJSON(ctx, w, http.StatusGatewayTimeout, errorResponse{ErrorCode: "JOB_TIMEOUT", Message: "ジョブの実行がタイムアウトしました。"})
	default:
		r.loggerFor(ctx).ErrorContext(ctx, "job run failed", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: localizedStatusMessage(http.StatusInternalServerError)})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func localizedStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "リクエスト内容が正しくありません。"
	case http.StatusUnauthorized:
		return "認証が必要です。"
	case http.StatusForbidden:
		return "この操作を実行する権限がありません。"
	case http.StatusNotFound:
		return "指定されたリソースが見つかりません。"
	case http.StatusConflict:
		return "要求はリソースの現在の状態と競合しています。"
	case http.StatusServiceUnavailable:
		return "サービスを利用できません。"
	default:
		return "サーバー内部でエラーが発生しました。"
	}
}

type errorResponse struct {
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message"`
}
