package fetcher

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

func withFields(e *zerolog.Event, keysAndValues []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		switch v := keysAndValues[i+1].(type) {
		case *url.URL:
			e = e.Str(key, redactURL(v.String()))
		case error:
			e = e.AnErr(key, redactError(v))
		case string:
			e = e.Str(key, redactText(v))
		default:
			e = e.Interface(key, v)
		}
	}
	return e
}

// redactText redacts the URLs in messages such as "GET https://host/file?sig=...".
func redactText(s string) string {
	parts := strings.Split(s, " ")
	for i, p := range parts {
		if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
			parts[i] = redactURL(p)
		}
	}
	return strings.Join(parts, " ")
}
