package auth

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

const redacted = "REDACTED"

// AccessLogFormatter は gin の標準書式から access_token クエリの値を伏せたもの
func AccessLogFormatter(p gin.LogFormatterParams) string {
	return fmt.Sprintf("[GIN] %v | %3d | %13v | %15s | %-7s %#v\n%s",
		p.TimeStamp.Format("2006/01/02 - 15:04:05"),
		p.StatusCode,
		p.Latency,
		p.ClientIP,
		p.Method,
		RedactPath(p.Path),
		p.ErrorMessage,
	)
}

// RedactPath: "/ws?access_token=xxx&a=1" → "/ws?a=1&access_token=REDACTED"
func RedactPath(path string) string {
	base, raw, ok := strings.Cut(path, "?")
	if !ok || !strings.Contains(raw, "access_token") {
		return path
	}
	q, err := url.ParseQuery(raw)
	if err != nil {
		// 解析できないクエリは丸ごと伏せる
		return base + "?" + redacted
	}
	if _, has := q["access_token"]; !has {
		return path
	}
	q.Set("access_token", redacted)
	return base + "?" + q.Encode()
}
