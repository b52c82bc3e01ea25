package handler

import (
	"net/http"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/rs/zerolog"
)

// WithRequestLogger はリクエストごとのロガーを context に設定します
// ハンドラーは zerolog.Ctx(r.Context()) で取り出します
func WithRequestLogger(base zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := base.With().
			Str("request_id", shortuuid.New()).
			Str("http_method", r.Method).
			Str("url_path", r.URL.Path).
			Logger()

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(l.WithContext(r.Context())))
		l.Debug().Dur("duration", time.Since(start)).Msg("リクエスト処理完了")
	})
}
