package queuestorage

import "errors"

var ErrNotFound = errors.New("queue entry not found")
