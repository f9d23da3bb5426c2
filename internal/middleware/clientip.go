package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP は監査用の送信元IPを返す。
// X-Forwarded-Forの先頭エントリを優先し、無ければRemoteAddrのホスト部を使用する。
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return PeerIP(r)
}

// PeerIP は接続元(RemoteAddr)のホスト部を返す。
// リクエストヘッダーを参照しないため、クライアントが値を詐称できない。
func PeerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
