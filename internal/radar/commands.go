package radar

import "strings"

// Allow list of K-LD2 commands. The module speaks an ASCII protocol: $
// prefixed commands, @ prefixed acknowledgements. Anything not listed here
// is refused before it reaches the wire.
var allowedCommands = []string{
	// Detection polling
	"$R00", // query whether a target is currently detected
	"$C00", // read the current speed report (bin;mph;magnitude;)
	"$C01", // read the raw FFT peak report

	// Sampling rate
	"$S0400", // set sampling rate to 1280 Hz
	"$S0401", // set sampling rate to 2560 Hz
	"$S0402", // set sampling rate to 5120 Hz
	"$S0403", // set sampling rate to 10240 Hz
	"$S0405", // set sampling rate to 20480 Hz (golf swing speeds, max ~144 mph)

	// Module information
	"$V00", // query firmware version
	"$P00", // query part number
}

// Parameterized commands take a value suffix, so they match on prefix.
var allowedCommandPrefixes = []string{
	"$S01", // set detection sensitivity (0-9 suffix)
	"$S02", // set detection threshold (hex suffix)
}

// IsAllowedCommand reports whether a command may be sent to the K-LD2.
func IsAllowedCommand(command string) bool {
	command = strings.TrimSpace(command)
	for _, allowed := range allowedCommands {
		if command == allowed {
			return true
		}
	}
	for _, prefix := range allowedCommandPrefixes {
		if strings.HasPrefix(command, prefix) && len(command) > len(prefix) {
			return true
		}
	}
	return false
}
