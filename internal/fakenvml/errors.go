package fakenvml

import "github.com/NVIDIA/go-nvml/pkg/nvml"

// errorStrings is the closed translation table for every code this
// library can produce.
var errorStrings = map[nvml.Return]string{
	nvml.SUCCESS:                   "Success",
	nvml.ERROR_UNINITIALIZED:       "Uninitialized",
	nvml.ERROR_INVALID_ARGUMENT:    "Invalid Argument",
	nvml.ERROR_NOT_SUPPORTED:       "Not Supported",
	nvml.ERROR_NO_PERMISSION:       "No Permission",
	nvml.ERROR_ALREADY_INITIALIZED: "Already Initialized",
	nvml.ERROR_NOT_FOUND:           "Not Found",
	nvml.ERROR_INSUFFICIENT_SIZE:   "Insufficient Size",
	nvml.ERROR_INSUFFICIENT_POWER:  "Insufficient Power",
	nvml.ERROR_DRIVER_NOT_LOADED:   "Driver Not Loaded",
	nvml.ERROR_TIMEOUT:             "Timeout",
	nvml.ERROR_FUNCTION_NOT_FOUND:  "Function Not Found",
	nvml.ERROR_UNKNOWN:             "Unknown Error",
}

const unknownErrorString = "Unknown Error"

// ErrorString translates a result code into its fixed human-readable
// label. It needs no initialized shim and never fails; codes outside the
// table degrade to the generic label.
func ErrorString(ret nvml.Return) string {
	if s, ok := errorStrings[ret]; ok {
		return s
	}
	return unknownErrorString
}
