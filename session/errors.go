package session

import (
	"errors"
	"strings"
)

// ErrPoolExhausted is returned when Acquire times out waiting for a free
// session at pool capacity.
var ErrPoolExhausted = errors.New("session: pool exhausted")

// ErrPoolClosed is returned for operations on a shut-down pool.
var ErrPoolClosed = errors.New("session: pool closed")

// ErrLaunchFailed is returned when spawning or connecting to a browser
// process fails.
var ErrLaunchFailed = errors.New("session: launch failed")

// deathSignals are transport-level error fragments that indicate the browser
// process or its CDP connection died underneath an in-flight operation.
var deathSignals = []string{
	"cdp connection closed",
	"use of closed network connection",
	"websocket: close",
	"connection reset by peer",
	"broken pipe",
	"target closed",
	"session closed",
	"browser has been closed",
}

// DeathSignal reports whether err indicates session death (as opposed to an
// ordinary page-level failure like a timeout or a missing element). Callers
// observing a death signal mid-operation should attempt exactly one
// recreate-and-retry of the remaining steps before surfacing failure.
func DeathSignal(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range deathSignals {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
