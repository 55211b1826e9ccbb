package app

import "errors"

var (
	// ErrRouteDenied indicates the current session cannot reach a route.
	ErrRouteDenied = errors.New("route not available for this session")
)
