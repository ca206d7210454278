package notifications

import "errors"

var ErrUnknownChannel = errors.New("notifications: unknown channel")
