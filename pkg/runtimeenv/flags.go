// Package runtimeenv models the environment toggles the embedding runtime reads at
// startup to select hardware specific optimization paths.
package runtimeenv

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v6"
	corev1 "k8s.io/api/core/v1"
)

const (
	IPEXOptimize = "IPEX_OPTIMIZE"
	UseXPU       = "USE_XPU"
	UseMPS       = "USE_MPS"
	PT2Compile   = "PT2_COMPILE"
)

// Names of the toggles in the order they are handed to the container.
var Names = []string{IPEXOptimize, UseXPU, UseMPS, PT2Compile}

var falsy = []string{"no", "n", "false", "0", "f", "off"}

// Toggle is a boolean read the way the runtime reads its environment: any value is
// true unless it is one of a small set of false spellings.
type Toggle bool

func ParseToggle(value string) Toggle {
	return Toggle(!slices.Contains(falsy, strings.ToLower(value)))
}

func (toggle Toggle) String() string {
	return strconv.FormatBool(bool(toggle))
}

func (toggle *Toggle) UnmarshalText(data []byte) error {
	*toggle = ParseToggle(string(data))
	return nil
}

func (toggle Toggle) MarshalText() ([]byte, error) {
	return []byte(toggle.String()), nil
}

// UnmarshalJSON accepts booleans, strings and numbers. Numbers are read as their
// decimal spelling so that 0 is false and anything else is true.
func (toggle *Toggle) UnmarshalJSON(data []byte) error {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	switch value := value.(type) {
	case bool:
		*toggle = Toggle(value)
	case string:
		*toggle = ParseToggle(value)
	case float64:
		*toggle = ParseToggle(strconv.FormatFloat(value, 'f', -1, 64))
	case nil:
		*toggle = false
	default:
		return fmt.Errorf("toggle must be a boolean, number or string but got: %s", data)
	}
	return nil
}

// Flags are the runtime toggles as requested by the operator.
type Flags struct {
	IPEXOptimize Toggle `json:"IPEX_OPTIMIZE" env:"IPEX_OPTIMIZE" envDefault:"false"`
	UseXPU       Toggle `json:"USE_XPU" env:"USE_XPU" envDefault:"false"`
	UseMPS       Toggle `json:"USE_MPS" env:"USE_MPS" envDefault:"false"`
	PT2Compile   Toggle `json:"PT2_COMPILE" env:"PT2_COMPILE" envDefault:"false"`
}

// FromEnviron reads the flags from the given environment. Unset variables are false.
func FromEnviron(environ map[string]string) (Flags, error) {
	var flags Flags
	if err := env.Parse(&flags, env.Options{Environment: environ}); err != nil {
		return Flags{}, fmt.Errorf("failed to parse runtime flags: %w", err)
	}
	return flags, nil
}

// FromOS reads the flags from the process environment.
func FromOS() (Flags, error) {
	environ := make(map[string]string)
	for _, name := range Names {
		if value, ok := os.LookupEnv(name); ok {
			environ[name] = value
		}
	}
	return FromEnviron(environ)
}

// Device is the accelerator the runtime will prefer given the flags.
type Device string

const (
	DeviceXPU Device = "xpu"
	DeviceMPS Device = "mps"
	// DeviceAuto lets the runtime pick cuda when available and the cpu otherwise.
	DeviceAuto Device = "auto"
)

type Resolution struct {
	Flags    Flags
	Device   Device
	Warnings []string
}

// Effective resolves the interactions between the toggles. XPU is only used through
// IPEX, and MPS is never combined with IPEX.
func (flags Flags) Effective() Resolution {
	resolved := flags

	var warnings []string
	if flags.IPEXOptimize {
		if flags.UseMPS {
			warnings = append(warnings, UseMPS+" is ignored when "+IPEXOptimize+" is enabled")
		}
		resolved.UseMPS = false
	} else {
		if flags.UseXPU {
			warnings = append(warnings, UseXPU+" is ignored unless "+IPEXOptimize+" is enabled")
		}
		resolved.UseXPU = false
	}

	device := DeviceAuto
	switch {
	case bool(resolved.UseXPU):
		device = DeviceXPU
	case bool(resolved.UseMPS):
		device = DeviceMPS
	}

	return Resolution{
		Flags:    resolved,
		Device:   device,
		Warnings: warnings,
	}
}

// Environ returns the flags keyed by variable name.
func (flags Flags) Environ() map[string]string {
	return map[string]string{
		IPEXOptimize: flags.IPEXOptimize.String(),
		UseXPU:       flags.UseXPU.String(),
		UseMPS:       flags.UseMPS.String(),
		PT2Compile:   flags.PT2Compile.String(),
	}
}

// EnvVars returns the container environment for the flags in Names order.
func (flags Flags) EnvVars() []corev1.EnvVar {
	environ := flags.Environ()
	result := make([]corev1.EnvVar, len(Names))
	for i, name := range Names {
		result[i] = corev1.EnvVar{Name: name, Value: environ[name]}
	}
	return result
}
