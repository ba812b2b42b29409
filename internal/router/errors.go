package router

import "fmt"

var (
	ErrRemoteUnavailable = fmt.Errorf("router: remote unavailable")
	ErrTimeout           = fmt.Errorf("router: timeout")
	ErrBudgetExceeded    = fmt.Errorf("router: budget exceeded")
	ErrUnauthorized      = fmt.Errorf("router: unauthorized")
)
