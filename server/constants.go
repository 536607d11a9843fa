package server

import "github.com/dotside-studios/rfid-agent/buildinfo"

// mDNS service discovery constants
var (
	MDNSServiceType = "_rfid-agent._tcp"
	MDNSServiceName = buildinfo.DisplayName
	MDNSDomain      = "local."
)

// HTTP routes
const (
	RouteHealth    = "/api/v1/health"
	RouteReader    = "/api/v1/reader"
	RouteWebSocket = "/ws"
)

// CORS configuration
const (
	CORSAllowOrigin  = "*"
	CORSAllowMethods = "GET, POST, OPTIONS"
	CORSAllowHeaders = "Content-Type, Authorization"
)
