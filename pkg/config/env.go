package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Var returns an environment variable with surrounding spaces and quotes
// removed
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// String returns a getter for a string variable
func String(key string) func() string {
	return func() string {
		return Var(key)
	}
}

// Int returns a getter for an integer variable that falls back to
// defaultValue when unset or malformed
func Int(key string, defaultValue int) func() int {
	return func() int {
		if s := Var(key); s != "" {
			if n, err := strconv.Atoi(s); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return n
			}
		}
		return defaultValue
	}
}

// Environment variables
const (
	EnvDevice         = "OFFLOAD_DEVICE"
	EnvModel          = "OFFLOAD_MODEL"
	EnvReferenceModel = "OFFLOAD_REFERENCE_MODEL"
	EnvFrameWidth     = "OFFLOAD_FRAME_WIDTH"
	EnvFrameHeight    = "OFFLOAD_FRAME_HEIGHT"
	EnvTopK           = "OFFLOAD_TOPK"
	EnvIterations     = "OFFLOAD_ITERATIONS"
	EnvLogLevel       = "OFFLOAD_LOG_LEVEL"
)

// EnvVar describes one supported environment variable
type EnvVar struct {
	Name        string
	Value       string
	Description string
}

// AsList returns every supported variable with its current value
func AsList() []EnvVar {
	return []EnvVar{
		{EnvDevice, Var(EnvDevice), "Device selector, e.g. SIM, VPUX.1, HAILO.0"},
		{EnvModel, Var(EnvModel), "Compiled network blob for the offloaded path"},
		{EnvReferenceModel, Var(EnvReferenceModel), "Blob evaluated by the host reference path"},
		{EnvFrameWidth, Var(EnvFrameWidth), "Raw frame width in pixels"},
		{EnvFrameHeight, Var(EnvFrameHeight), "Raw frame height in pixels"},
		{EnvTopK, Var(EnvTopK), "Number of classes compared against the reference"},
		{EnvIterations, Var(EnvIterations), "Inferences per run"},
		{EnvLogLevel, Var(EnvLogLevel), "debug, info, warn or error"},
	}
}
