package rstmdb

import "errors"

// ErrSubscriptionClosed is returned by Subscription.Next after the
// subscription has been cancelled or the client has shut down.
var ErrSubscriptionClosed = errors.New("subscription closed")
