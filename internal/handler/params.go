package handler

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

var tickerParam = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)

func intQuery(c *gin.Context, key string, def int) int {
	if val := c.Query(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}

// tickerFrom normalizes a ticker path parameter. ok is false when the value
// does not look like a symbol.
func tickerFrom(c *gin.Context, key string) (string, bool) {
	t := strings.ToUpper(strings.TrimSpace(c.Param(key)))
	return t, tickerParam.MatchString(t)
}
