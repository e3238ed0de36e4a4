package protocol

import "fmt"

// Code is a typed protocol error code from the coordinator's error taxonomy.
// Every code maps to exactly one enforcement action (see Code.Action).
type Code int

const (
	// Framing errors: close, no chain-level penalty beyond disconnect.
	ECHECKSUM Code = iota + 1
	EBLOCKSIZE

	// Protocol sequencing errors: close.
	ENOINIT
	EINVINIT
	EUNREQUESTED

	// Content invalid errors: close; chain server may separately report an
	// offense.
	EBATCHSIZE
	EEMPTY
	EBADROLLBACK
	EBADROLLBACKLEN
	EINVBODY

	// Priority/consistency errors: close.
	ELOWPRIORITY

	// Timeout: close.
	ETIMEOUT

	// Transport: mark address failed, reschedule; no peer to close.
	ENOTFOUND
)

func (c Code) String() string {
	switch c {
	case ECHECKSUM:
		return "ECHECKSUM"
	case EBLOCKSIZE:
		return "EBLOCKSIZE"
	case ENOINIT:
		return "ENOINIT"
	case EINVINIT:
		return "EINVINIT"
	case EUNREQUESTED:
		return "EUNREQUESTED"
	case EBATCHSIZE:
		return "EBATCHSIZE"
	case EEMPTY:
		return "EEMPTY"
	case EBADROLLBACK:
		return "EBADROLLBACK"
	case EBADROLLBACKLEN:
		return "EBADROLLBACKLEN"
	case EINVBODY:
		return "EINVBODY"
	case ELOWPRIORITY:
		return "ELOWPRIORITY"
	case ETIMEOUT:
		return "ETIMEOUT"
	case ENOTFOUND:
		return "ENOTFOUND"
	default:
		return fmt.Sprintf("EUNKNOWN(%d)", int(c))
	}
}

// Action describes what the dispatcher does in response to an Error.
type Action int

const (
	ActionClosePeer Action = iota
	ActionMarkAddressFailed
)

// Action reports the taxonomy action associated with code.
func (c Code) Action() Action {
	if c == ENOTFOUND {
		return ActionMarkAddressFailed
	}
	return ActionClosePeer
}

// Error is a typed protocol violation raised by validation deep inside
// message handling; the dispatcher converts it into a peer close (or address
// failure) and continues running the loop.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Errorf constructs an *Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}
