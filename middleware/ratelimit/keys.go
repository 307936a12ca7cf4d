package ratelimit

import (
	"net/http"
	"strings"
)

// KeyFunc deriva as chaves de um tier. Lista vazia (ou só com vazios) pula o tier.
// Várias chaves são combinadas com AND: todas precisam passar.
type KeyFunc func(r *http.Request, userID, ip string) []string

// ByUser limita por usuário; anônimo pula o tier.
func ByUser() KeyFunc {
	return func(_ *http.Request, userID, _ string) []string { return []string{userID} }
}

// ByIP limita por IP; sem IP pula o tier.
func ByIP() KeyFunc {
	return func(_ *http.Request, _, ip string) []string { return []string{ip} }
}

// ByIPOr limita por IP; sem IP todos caem no mesmo balde `anon`.
func ByIPOr(anon string) KeyFunc {
	return func(_ *http.Request, _, ip string) []string {
		if strings.TrimSpace(ip) == "" {
			return []string{anon}
		}
		return []string{ip}
	}
}

// ByIPWhenAnonymous aplica o tier por IP só quando não há usuário: impede que
// anônimos escapem do limite por usuário sem penalizar duas vezes quem está logado.
func ByIPWhenAnonymous() KeyFunc {
	return func(_ *http.Request, userID, ip string) []string {
		if strings.TrimSpace(userID) != "" {
			return nil
		}
		return []string{ip}
	}
}

// Composite junta as chaves de vários KeyFunc, na ordem.
func Composite(fns ...KeyFunc) KeyFunc {
	return func(r *http.Request, userID, ip string) []string {
		var out []string
		for _, fn := range fns {
			out = append(out, fn(r, userID, ip)...)
		}
		return out
	}
}

// normalizeKeys remove espaços e descarta vazios, mantendo a ordem.
func normalizeKeys(keys []string) []string {
	out := keys[:0:0]
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}
