// utilitário pequeno para formatação consistente de valores em headers e no corpo do 429.

package ratelimit

import (
	"strconv"
	"time"
)

// ISO-8601 em UTC, sempre com milissegundos.
const isoMillis = "2006-01-02T15:04:05.000Z"

func formatInt(v int) string { return strconv.Itoa(v) }

func formatInt64(v int64) string { return strconv.FormatInt(v, 10) }

func formatResetAt(epochSeconds int64) string {
	return time.Unix(epochSeconds, 0).UTC().Format(isoMillis)
}
