package upstream

import (
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// leveledLogger adapts zerolog to retryablehttp.LeveledLogger.
type leveledLogger struct {
	log zerolog.Logger
}

var _ retryablehttp.LeveledLogger = leveledLogger{}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.emit(l.log.Error(), msg, kv) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.emit(l.log.Info(), msg, kv) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.emit(l.log.Debug(), msg, kv) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.emit(l.log.Warn(), msg, kv) }

func (l leveledLogger) emit(evt *zerolog.Event, msg string, kv []interface{}) {
	for i := 0; i+1 < len(kv); i += 2 {
		evt = evt.Interface(fmt.Sprint(kv[i]), kv[i+1])
	}
	evt.Msg(msg)
}

// requestHook logs each attempt; attempt 0 is the first try.
func requestHook(log zerolog.Logger) retryablehttp.RequestLogHook {
	return func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		evt := log.Debug()
		if attempt > 0 {
			evt = log.Warn()
		}
		evt.Str("method", req.Method).
			Str("url", req.URL.String()).
			Int("attempt", attempt).
			Msg("upstream request")
	}
}

func responseHook(log zerolog.Logger) retryablehttp.ResponseLogHook {
	return func(_ retryablehttp.Logger, resp *http.Response) {
		evt := log.Debug()
		if resp.StatusCode >= 400 {
			evt = log.Warn()
		}
		evt.Str("method", resp.Request.Method).
			Str("url", resp.Request.URL.String()).
			Int("status", resp.StatusCode).
			Str("content_type", resp.Header.Get("Content-Type")).
			Msg("upstream response")
	}
}

// logDuration logs the outcome of one logical fetch, across pages.
func logDuration(log zerolog.Logger, op, target string, start time.Time, err error) {
	evt := log.Info()
	if err != nil {
		evt = log.Warn().Err(err)
	}
	evt.Str("op", op).Str("target", target).Dur("duration", time.Since(start)).Msg("upstream call")
}
