package common

import (
	"os"
	"strconv"
)

// ConfiguredInt is an integer that may optionally be overridden by the
// user through an environment variable, carrying enough provenance to
// explain itself in a diagnostics dump.
type ConfiguredInt struct {
	Value             int
	IsUserSpecified   bool
	EnvVarName        string
	DefaultSourceDesc string
}

func (c ConfiguredInt) Description() string {
	if c.IsUserSpecified {
		return "based on " + c.EnvVarName + " environment variable"
	}
	return "based on " + c.DefaultSourceDesc + "; set " + c.EnvVarName + " to override"
}

// NewConfiguredInt reads envVar and falls back to defaultValue/defaultDesc
// when unset or unparseable.
func NewConfiguredInt(envVar string, defaultValue int, defaultDesc string) ConfiguredInt {
	if raw := os.Getenv(envVar); raw != "" {
		if val, err := strconv.Atoi(raw); err == nil {
			return ConfiguredInt{Value: val, IsUserSpecified: true, EnvVarName: envVar}
		}
	}
	return ConfiguredInt{Value: defaultValue, EnvVarName: envVar, DefaultSourceDesc: defaultDesc}
}

// ConfiguredBool is the boolean counterpart of ConfiguredInt.
type ConfiguredBool struct {
	Value           bool
	IsUserSpecified bool
	EnvVarName      string
}

func NewConfiguredBool(envVar string, defaultValue bool) ConfiguredBool {
	if raw := os.Getenv(envVar); raw != "" {
		if val, err := strconv.ParseBool(raw); err == nil {
			return ConfiguredBool{Value: val, IsUserSpecified: true, EnvVarName: envVar}
		}
	}
	return ConfiguredBool{Value: defaultValue, EnvVarName: envVar}
}
