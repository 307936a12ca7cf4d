package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// Cabeçalhos de proxy consultados depois do X-Forwarded-For, nesta ordem.
var clientIPHeaders = []string{
	"X-Real-IP",
	"CF-Connecting-IP",
	"X-Client-IP",
	"Fastly-Client-IP",
	"True-Client-IP",
}

// ResolveIP devolve o IP do cliente (best-effort) ou "" quando não há nenhum.
//
// Ordem: primeiro endereço do X-Forwarded-For, X-Real-IP, CF-Connecting-IP,
// X-Client-IP, Fastly-Client-IP, True-Client-IP e por fim o endereço da conexão.
// "" deve ser tratado como anônimo por quem chama.
func ResolveIP(h http.Header, remoteAddr string) string {
	if ip := firstFromList(h.Get("X-Forwarded-For")); ip != "" {
		return ip
	}
	for _, name := range clientIPHeaders {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return v
		}
	}
	return hostOnly(remoteAddr)
}

// ClientIP é ResolveIP para um *http.Request.
func ClientIP(r *http.Request) string {
	return ResolveIP(r.Header, r.RemoteAddr)
}

func firstFromList(v string) string {
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			return p
		}
	}
	return ""
}

func hostOnly(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(addr)
	if err == nil {
		return host
	}
	return addr
}
