package guard

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/and161185/eventdesk/internal/session"
)

// StateKey is the gin context key under which a granted request's session snapshot is stored.
const StateKey = "eventdesk.session"

const placeholderHTML = `<!doctype html>
<html><head><meta charset="utf-8"><title>Loading…</title></head>
<body><p class="loading">Loading…</p></body></html>`

// Middleware gates the following handlers on req.
//
// Pending renders a neutral placeholder (200 with Refresh: 1) so the browser polls until the
// session settles. Denied redirects. Granted stores the snapshot and continues.
func (g *Guard) Middleware(req Requirement) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := g.src.State()
		d := Evaluate(st, req)
		switch d.Status {
		case Pending:
			c.Header("Refresh", "1")
			c.Header("Cache-Control", "no-store")
			c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(placeholderHTML))
			c.Abort()
		case Denied:
			c.Redirect(http.StatusFound, d.Redirect)
			c.Abort()
		default:
			c.Set(StateKey, st)
			c.Next()
		}
	}
}

// CurrentState returns the snapshot stored by Middleware, or the zero state.
func CurrentState(c *gin.Context) session.State {
	if v, ok := c.Get(StateKey); ok {
		if st, ok := v.(session.State); ok {
			return st
		}
	}
	return session.State{}
}
