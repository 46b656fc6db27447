package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"deptattendance/internal/attendance"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error  string                  `json:"error"`
	Kind   string                  `json:"kind,omitempty"`
	Fields []attendance.FieldError `json:"fields,omitempty"`
}

// respondError maps store errors onto HTTP statuses. Unknown errors are
// attached to the context for the request logger and hidden from clients.
func respondError(c *gin.Context, err error) {
	var (
		verr *attendance.ValidationError
		aerr *attendance.AuthError
		derr *attendance.DocumentError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, errorResponse{Error: verr.Error(), Fields: verr.Fields})
	case attendance.ConflictKind(err) != "":
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error(), Kind: attendance.ConflictKind(err)})
	case errors.As(err, &aerr):
		c.JSON(http.StatusUnauthorized, errorResponse{Error: aerr.Error()})
	case errors.Is(err, attendance.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.As(err, &derr):
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "stored data is malformed"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}
