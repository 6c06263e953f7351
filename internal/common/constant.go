// Package common contains constants and sentinel errors shared by the
// FinanceHub sync agent and backup server.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the device
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// ServiceVersion is reported by the health check.
const ServiceVersion = "1.0.0"

// HealthStatusOK is what a healthy server reports from HealthCheck.
const HealthStatusOK = "OK"
