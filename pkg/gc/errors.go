package gc

import "errors"

var (
	errConfigFileRead    = errors.New("cannot read config file")
	errConfigInvalid     = errors.New("invalid config file")
	errGenerationsNonPos = errors.New("generations must be greater than zero")
	errBucketsNonPos     = errors.New("buckets must be greater than zero")
	errThresholdsLength  = errors.New("thresholds length must equal generations")
	errNotReady          = errors.New("collector is not ready: call Init first")
	errAlreadyReady      = errors.New("collector is already initialized")
	errNilPtr            = errors.New("pointer is nil")
	errUnknownPtr        = errors.New("pointer is not tracked by this collector")
	errAllocFailed       = errors.New("allocation failed")
)
