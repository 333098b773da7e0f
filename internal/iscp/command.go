package iscp

import (
	"errors"
	"fmt"
	"strings"
)

// Level limits applied by Command.Encode.
const (
	VolumeMaxLevel = 100
	ToneMinLevel   = -10
	ToneMaxLevel   = 10
)

// ErrUnknownAction is returned for an Action outside the vocabulary.
var ErrUnknownAction = errors.New("iscp: unknown action")

// Action selects one supported receiver operation.
type Action int

const (
	ActionPowerOn Action = iota + 1
	ActionPowerOff
	ActionMute
	ActionUnmute
	ActionVolume
	ActionVolumeUp
	ActionVolumeDown
	ActionBass
	ActionBassUp
	ActionBassDown
	ActionTreble
	ActionTrebleUp
	ActionTrebleDown
	ActionRaw
)

var actionNames = map[Action]string{
	ActionPowerOn:    "power-on",
	ActionPowerOff:   "power-off",
	ActionMute:       "mute",
	ActionUnmute:     "unmute",
	ActionVolume:     "volume",
	ActionVolumeUp:   "volume-up",
	ActionVolumeDown: "volume-down",
	ActionBass:       "bass",
	ActionBassUp:     "bass-up",
	ActionBassDown:   "bass-down",
	ActionTreble:     "treble",
	ActionTrebleUp:   "treble-up",
	ActionTrebleDown: "treble-down",
	ActionRaw:        "raw",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// ParseAction maps a name produced by Action.String back to its Action.
func ParseAction(s string) (Action, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for a, name := range actionNames {
		if name == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// Command is one receiver operation. Level is used by ActionVolume,
// ActionBass and ActionTreble; Code and Param only by ActionRaw.
type Command struct {
	Action Action
	Level  int
	Code   string
	Param  string
}

func PowerOn() Command         { return Command{Action: ActionPowerOn} }
func PowerOff() Command        { return Command{Action: ActionPowerOff} }
func Mute() Command            { return Command{Action: ActionMute} }
func Unmute() Command          { return Command{Action: ActionUnmute} }
func Volume(level int) Command { return Command{Action: ActionVolume, Level: level} }
func VolumeUp() Command        { return Command{Action: ActionVolumeUp} }
func VolumeDown() Command      { return Command{Action: ActionVolumeDown} }
func Bass(level int) Command   { return Command{Action: ActionBass, Level: level} }
func BassUp() Command          { return Command{Action: ActionBassUp} }
func BassDown() Command        { return Command{Action: ActionBassDown} }
func Treble(level int) Command { return Command{Action: ActionTreble, Level: level} }
func TrebleUp() Command        { return Command{Action: ActionTrebleUp} }
func TrebleDown() Command      { return Command{Action: ActionTrebleDown} }

// Raw carries an arbitrary command code and parameter.
func Raw(code, param string) Command {
	return Command{Action: ActionRaw, Code: code, Param: param}
}

// Encode maps c to its wire command code and parameter.
func (c Command) Encode() (string, string, error) {
	switch c.Action {
	case ActionPowerOn:
		return "PWR", "01", nil
	case ActionPowerOff:
		return "PWR", "00", nil
	case ActionMute:
		return "AMT", "01", nil
	case ActionUnmute:
		return "AMT", "00", nil
	case ActionVolume:
		return "MVL", fmt.Sprintf("%02X", clamp(c.Level, 0, VolumeMaxLevel)), nil
	case ActionVolumeUp:
		return "MVL", "UP", nil
	case ActionVolumeDown:
		return "MVL", "DOWN", nil
	case ActionBass:
		return "TFR", "B" + signedHex(c.Level, ToneMinLevel, ToneMaxLevel), nil
	case ActionBassUp:
		return "TFR", "BUP", nil
	case ActionBassDown:
		return "TFR", "BDOWN", nil
	case ActionTreble:
		return "TFR", "T" + signedHex(c.Level, ToneMinLevel, ToneMaxLevel), nil
	case ActionTrebleUp:
		return "TFR", "TUP", nil
	case ActionTrebleDown:
		return "TFR", "TDOWN", nil
	case ActionRaw:
		return c.Code, c.Param, nil
	default:
		return "", "", fmt.Errorf("%w: %d", ErrUnknownAction, int(c.Action))
	}
}

// Message encodes c into a receiver-addressed message.
func (c Command) Message() (Message, error) {
	code, param, err := c.Encode()
	if err != nil {
		return Message{}, err
	}
	return NewMessage(code, param)
}

func (c Command) String() string {
	switch c.Action {
	case ActionVolume, ActionBass, ActionTreble:
		return fmt.Sprintf("%s(%d)", c.Action, c.Level)
	case ActionRaw:
		return fmt.Sprintf("raw(%s %s)", c.Code, c.Param)
	default:
		return c.Action.String()
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// signedHex clamps v and renders it as an explicitly signed uppercase hex
// magnitude, e.g. +0, +A, -3.
func signedHex(v, lo, hi int) string {
	v = clamp(v, lo, hi)
	if v < 0 {
		return fmt.Sprintf("-%X", -v)
	}
	return fmt.Sprintf("+%X", v)
}
