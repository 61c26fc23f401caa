package types

import "errors"

// exported errors
var (
	ErrNoConnection  = errors.New("no connection to a project collection is selected")
	ErrServiceCall   = errors.New("service call failed")
	ErrParse         = errors.New("malformed permission data")
	ErrIO            = errors.New("permission storage unavailable")
	ErrNotFound      = errors.New("not found")
	ErrInvalidChange = errors.New("invalid security group change")
	ErrBusy          = errors.New("another operation is in progress")
	ErrUnexpected    = errors.New("an unexpected exception occurred")
)
