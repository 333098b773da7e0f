// iscpctl - control networked AV receivers over ISCP
//
// Usage:
//
//	iscpctl discover     - find receivers on the local network
//	iscpctl select <id>  - choose the receiver later commands act on
//	iscpctl on|off|...   - send a command to the selected receiver
//	iscpctl serve        - run the shared registry daemon
package main

import (
	"fmt"
	"os"

	"iscpctl/cmd/control"
	"iscpctl/cmd/serve"
)

const (
	defaultSystemPath = "/etc/iscpctl/config.toml"
	defaultLocalPath  = "config.toml"
	version           = "0.3.0"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	configPath := ""

	// Parse --config flag if present
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" && i+1 < len(args) {
			configPath = args[i+1]
			args = append(args[:i], args[i+2:]...)
			i--
			continue
		}
		if len(arg) > 9 && arg[:9] == "--config=" {
			configPath = arg[9:]
			args = append(args[:i], args[i+1:]...)
			i--
			continue
		}
	}

	// Auto-discover config if not specified
	if configPath == "" {
		if _, err := os.Stat(defaultLocalPath); err == nil {
			configPath = defaultLocalPath
		} else {
			configPath = defaultSystemPath
		}
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	subcommand := args[0]
	var err error

	switch subcommand {
	case "discover":
		err = control.Discover(configPath)
	case "list":
		err = control.List(configPath)
	case "select":
		err = control.Select(configPath, args[1:])
	case "history":
		err = control.History(configPath)
	case "serve":
		err = serve.Run(configPath)
	case "edit":
		err = serve.EditConfig(configPath)
	case "version":
		fmt.Printf("iscpctl v%s\n", version)
		return
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		if control.IsCommand(subcommand) {
			err = control.Send(configPath, args)
			break
		}
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`iscpctl v%s - control networked AV receivers over ISCP

Usage:
  iscpctl <command> [arguments] [--config <path>]

Commands:
  discover                         Discover receivers on the local network
  list                             List the discovered receivers
  select <id>                      Select the receiver with the given id
  on | off                         Power the selected receiver on or off
  mute | unmute                    Mute or unmute the selected receiver
  volume <level>                   Set the volume (alias: vol)
  volume-up | volume-down          Step the volume by one
  bass | treble <level>            Set front bass or treble (-10 to 10)
  bass-up | bass-down              Step front bass by one
  treble-up | treble-down          Step front treble by one
  power-on | power-off             Same as on | off
  tone front bass|treble <level>   Shift front bass or treble (-10 to 10)
  raw <command> <parameter>        Send an arbitrary ISCP command
  history                          List every receiver ever discovered
  serve                            Run the registry daemon on a Unix socket
  edit                             Edit the configuration file in your system editor
  version                          Print version information
  help                             Show this help message

Options:
  --config <path>  Path to config file (default: looks for ./config.toml, then %s)

Examples:
  iscpctl discover                 # Find receivers and save the list
  iscpctl select 0                 # Control the first receiver
  iscpctl vol 25                   # Set volume (capped at volume_max_level)
  iscpctl raw SLI 2B               # Switch input

When 'iscpctl serve' is running, the other commands go through its socket.

`, version, defaultSystemPath)
}
