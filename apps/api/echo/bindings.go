package echoapi

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/staffhub/backend/core"
)

const (
	limitParam   = "limit"
	defaultLimit = 10
	maxLimit     = 100
)

// Limit is the number of recent runs to return, from the `limit` query param.
type Limit struct {
	N int
}

func (l *Limit) Bind(ctx echo.Context) error {
	l.N = defaultLimit
	val := ctx.QueryParam(limitParam)
	if val == "" {
		return nil
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 1 || n > maxLimit {
		return core.NewFieldsValidationError("must be a number between 1 and "+strconv.Itoa(maxLimit), limitParam)
	}
	l.N = n
	return nil
}
