package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	statusOK = "ok"
	statusKO = "ko"
)

// respondOK writes the success envelope. An empty callback leaves the
// choice to the client's default handler.
func respondOK(c *gin.Context, callback string, payload gin.H) {
	body := gin.H{"status": statusOK}
	for k, v := range payload {
		body[k] = v
	}
	if callback != "" {
		body["callback"] = callback
	}
	c.JSON(http.StatusOK, body)
}

// respondKO writes an application-level failure. It is still HTTP 200:
// the client shows respmsg and keeps its current page.
func respondKO(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, gin.H{"status": statusKO, "respmsg": msg})
}
