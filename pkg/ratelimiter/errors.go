package ratelimiter

import "errors"

var ErrEmptyKey = errors.New("ratelimiter: recipient is required")
