// Package probe implements reachability checks against device addresses.
//
// The main components are:
//
//   - [Prober]: interface implemented by every probe method
//   - [ICMPProber]: ICMP echo request/reply
//   - [TCPProber]: TCP connect to a fixed port
//   - [SafeProber]: wraps a Prober with panic recovery
//
// A Prober distinguishes two outcomes. A probe that ran to completion
// returns a [Result] and a nil error; Reachable is false when no reply
// arrived inside the probe timeout. A non-nil error means the probe could
// not be carried out at all (unresolvable address, socket failure, caller
// context done), and callers must not treat it as "down".
package probe
