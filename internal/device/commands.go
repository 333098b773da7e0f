package device

import "iscpctl/internal/iscp"

// Commands issues named receiver operations through a Sender. Every method
// returns the transmission result; none waits for a reply.
type Commands struct {
	target Sender
}

// NewCommands binds a command builder to any Sender.
func NewCommands(s Sender) *Commands {
	return &Commands{target: s}
}

// Do encodes and sends c.
func (c *Commands) Do(cmd iscp.Command) error {
	return send(c.target, cmd)
}

func (c *Commands) PowerOn() error  { return c.Do(iscp.PowerOn()) }
func (c *Commands) PowerOff() error { return c.Do(iscp.PowerOff()) }
func (c *Commands) Mute() error     { return c.Do(iscp.Mute()) }
func (c *Commands) Unmute() error   { return c.Do(iscp.Unmute()) }

// SetVolume sets the master volume, clamped to [0, iscp.VolumeMaxLevel].
func (c *Commands) SetVolume(level int) error { return c.Do(iscp.Volume(level)) }

func (c *Commands) VolumeUp() error   { return c.Do(iscp.VolumeUp()) }
func (c *Commands) VolumeDown() error { return c.Do(iscp.VolumeDown()) }

// SetBass sets the front bass level, clamped to the tone range.
func (c *Commands) SetBass(level int) error { return c.Do(iscp.Bass(level)) }

func (c *Commands) BassUp() error   { return c.Do(iscp.BassUp()) }
func (c *Commands) BassDown() error { return c.Do(iscp.BassDown()) }

// SetTreble sets the front treble level, clamped to the tone range.
func (c *Commands) SetTreble(level int) error { return c.Do(iscp.Treble(level)) }

func (c *Commands) TrebleUp() error   { return c.Do(iscp.TrebleUp()) }
func (c *Commands) TrebleDown() error { return c.Do(iscp.TrebleDown()) }

// Raw sends an arbitrary 3 character code and parameter.
func (c *Commands) Raw(code, param string) error { return c.Do(iscp.Raw(code, param)) }
