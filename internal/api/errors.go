package api

import (
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/dealyard/internal/apperr"
	"github.com/zulandar/dealyard/internal/logging"
)

// errorBody is the envelope every failed request returns. Current carries the
// canonical entity after the failed attempt when it could be loaded.
type errorBody struct {
	Error   errorDetail `json:"error"`
	Current any         `json:"current,omitempty"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func respondError(c *gin.Context, err error, current any) {
	status := apperr.HTTPStatus(err)
	detail := errorDetail{Kind: string(apperr.KindOf(err)), Message: err.Error()}
	if status == http.StatusInternalServerError {
		logging.FromContext(c.Request.Context()).Error("request failed", "path", c.FullPath(), "error", err)
		detail = errorDetail{Kind: "internal", Message: "internal error"}
	}
	body := errorBody{Error: detail}
	if !isNil(current) {
		body.Current = current
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	respondError(c, apperr.Validation("api: decode", "%v", err), nil)
}

// isNil reports whether v is nil or a typed nil pointer.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Ptr && rv.IsNil()
}
