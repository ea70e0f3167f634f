package httpgin

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"

	cacheTrip     = "public, max-age=60"
	cacheSeats    = "public, max-age=15"
	cacheTracking = "public, max-age=15"
	cacheTicket   = "private, no-cache"
)

// writeJSONWithCache writes v as JSON with an ETag and Cache-Control.
// A matching If-None-Match yields 304 without a body.
func writeJSONWithCache(c *gin.Context, status int, v any, cacheControl string) {
	b, err := json.Marshal(v)
	if err != nil {
		_ = c.Error(err)
		c.Status(http.StatusInternalServerError)
		return
	}
	writeWithCache(c, status, contentTypeJSON, b, cacheControl, true)
}

func writeWithCache(
	c *gin.Context,
	status int,
	contentType string,
	body []byte,
	cacheControl string,
	weak bool,
) {
	sum := sha256.Sum256(body)
	tag := `"` + hex.EncodeToString(sum[:16]) + `"`
	if weak {
		tag = "W/" + tag
	}

	c.Header("ETag", tag)
	if cacheControl != "" {
		c.Header("Cache-Control", cacheControl)
	}

	if etagMatches(c.GetHeader("If-None-Match"), tag) {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(status, contentType, body)
}

// etagMatches applies the weak comparison of If-None-Match, which may list
// several tags or be "*".
func etagMatches(header, tag string) bool {
	if header == "" {
		return false
	}

	want := strings.TrimPrefix(tag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == want {
			return true
		}
	}
	return false
}
