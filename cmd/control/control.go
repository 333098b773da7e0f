// Package control implements the iscpctl device commands: discovery, device
// selection and sending commands to the selected receiver.
package control

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"iscpctl/internal/iscp"
	"iscpctl/internal/remote"
	"iscpctl/pkg/config"
	"iscpctl/pkg/logger"
)

func load(configPath string) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("loading config: %w", err)
	}
	return cfg, logger.Init(cfg.Remote.LogLevel), nil
}

// Discover searches the network for receivers and lists them.
func Discover(configPath string) error {
	cfg, log, err := load(configPath)
	if err != nil {
		return err
	}
	timeout, err := cfg.Remote.ParseDiscoverTimeout()
	if err != nil {
		return fmt.Errorf("parsing discover timeout: %w", err)
	}

	b, err := openBackend(cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	fmt.Printf("Discovering devices (timeout %s)...\n", timeout)
	devices, err := b.Discover(timeout)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	printDevices(os.Stdout, devices, selection(b, log), terminalWidth())
	return nil
}

// selection returns the selected index for display, or -1 when it cannot be
// read. The devices were already found, so a failure here is only logged.
func selection(b backend, log zerolog.Logger) int {
	index, err := b.Selected()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read selected device")
		return -1
	}
	return index
}

// List prints the devices found by the last discovery.
func List(configPath string) error {
	cfg, log, err := load(configPath)
	if err != nil {
		return err
	}
	b, err := openBackend(cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	devices, err := b.Devices()
	if err != nil {
		return fmt.Errorf("fetching devices: %w", err)
	}
	selected, err := b.Selected()
	if err != nil {
		return fmt.Errorf("reading selection: %w", err)
	}
	printDevices(os.Stdout, devices, selected, terminalWidth())
	return nil
}

// Select makes the device at the given list index the target of later
// commands.
func Select(configPath string, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: iscpctl select <id>")
	}
	index, err := strconv.Atoi(args[0])
	if err != nil || index < 0 {
		return fmt.Errorf("invalid device id: %s", args[0])
	}

	cfg, log, err := load(configPath)
	if err != nil {
		return err
	}
	b, err := openBackend(cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.Select(index); err != nil {
		if errors.Is(err, remote.ErrNoDevice) {
			return fmt.Errorf("there is no device with id %d; run 'iscpctl list'", index)
		}
		return err
	}
	fmt.Printf("✓ Selected device %d\n", index)
	return nil
}

// Send builds a command from args and sends it to the selected device.
// args[0] is the command name as typed on the command line.
func Send(configPath string, args []string) error {
	cfg, log, err := load(configPath)
	if err != nil {
		return err
	}
	cmd, err := parseCommand(args, cfg.Remote.VolumeMaxLevel)
	if err != nil {
		return err
	}

	b, err := openBackend(cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	index, err := b.Selected()
	if err != nil {
		return fmt.Errorf("reading selection: %w", err)
	}

	dev, err := b.Send(index, cmd)
	if err != nil {
		if errors.Is(err, remote.ErrNoDevice) {
			return fmt.Errorf("selected device %d not found; run 'iscpctl discover'", index)
		}
		return fmt.Errorf("failed to send command: %w", err)
	}

	log.Debug().Str("command", cmd.String()).Str("address", dev.Address).Msg("Command sent")
	fmt.Printf("✓ %s → %s\n", cmd, dev)
	return nil
}

// parseCommand maps command-line words to a receiver command. Volume levels
// are capped at volumeMax before the protocol's own limit applies.
func parseCommand(args []string, volumeMax int) (iscp.Command, error) {
	if len(args) == 0 {
		return iscp.Command{}, errors.New("no command given")
	}

	switch name, rest := strings.ToLower(args[0]), args[1:]; name {
	case "on":
		return iscp.PowerOn(), nil
	case "off":
		return iscp.PowerOff(), nil
	case "mute":
		return iscp.Mute(), nil
	case "unmute":
		return iscp.Unmute(), nil

	case "volume", "vol":
		if len(rest) != 1 {
			return iscp.Command{}, errors.New("usage: iscpctl volume <level>")
		}
		level, err := strconv.Atoi(rest[0])
		if err != nil || level < 0 {
			return iscp.Command{}, fmt.Errorf("invalid volume level: %s", rest[0])
		}
		if level > volumeMax {
			level = volumeMax
		}
		return iscp.Volume(level), nil

	case "tone":
		if len(rest) != 3 {
			return iscp.Command{}, errors.New("usage: iscpctl tone front bass|treble <level>")
		}
		if strings.ToLower(rest[0]) != "front" {
			return iscp.Command{}, fmt.Errorf("invalid speaker: %s", rest[0])
		}
		level, err := strconv.Atoi(rest[2])
		if err != nil {
			return iscp.Command{}, fmt.Errorf("invalid tone level: %s", rest[2])
		}
		switch strings.ToLower(rest[1]) {
		case "bass":
			return iscp.Bass(level), nil
		case "treble":
			return iscp.Treble(level), nil
		default:
			return iscp.Command{}, fmt.Errorf("invalid tone setting: %s", rest[1])
		}

	case "raw":
		if len(rest) != 2 {
			return iscp.Command{}, errors.New("usage: iscpctl raw <command> <parameter>")
		}
		return iscp.Raw(rest[0], rest[1]), nil

	default:
		action, err := iscp.ParseAction(name)
		if err != nil {
			return iscp.Command{}, fmt.Errorf("unknown command: %s", name)
		}
		switch action {
		case iscp.ActionBass, iscp.ActionTreble:
			if len(rest) != 1 {
				return iscp.Command{}, fmt.Errorf("usage: iscpctl %s <level>", name)
			}
			level, err := strconv.Atoi(rest[0])
			if err != nil {
				return iscp.Command{}, fmt.Errorf("invalid tone level: %s", rest[0])
			}
			return iscp.Command{Action: action, Level: level}, nil
		default:
			if len(rest) != 0 {
				return iscp.Command{}, fmt.Errorf("%s takes no arguments", name)
			}
			return iscp.Command{Action: action}, nil
		}
	}
}

// IsCommand reports whether name is a receiver command accepted by Send.
func IsCommand(name string) bool {
	switch name = strings.ToLower(name); name {
	case "on", "off", "mute", "unmute", "volume", "vol", "tone", "raw":
		return true
	}
	_, err := iscp.ParseAction(name)
	return err == nil
}
