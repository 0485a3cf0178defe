package cli

import "errors"

var (
	errNoOperations     = errors.New("no operations given")
	errBadOperand       = errors.New("bad operand")
	errUnknownOperation = errors.New("unknown operation")
	errHandleOutOfRange = errors.New("handle out of range")
)
