package domain

import (
	"errors"
	"fmt"
)

// ControlChannelError indicates a transport command could not be delivered
// to a player or did not take effect within the bounded wait.
// It is always scoped to a single player: the coordinator logs it and
// continues with the rest of the batch.
type ControlChannelError struct {
	Player  PlayerIdentity
	Command string
	Err     error
}

func (e *ControlChannelError) Error() string {
	return fmt.Sprintf("control channel: %s %s: %v", e.Command, e.Player, e.Err)
}

func (e *ControlChannelError) Unwrap() error {
	return e.Err
}

// IsControlChannel reports whether err is (or wraps) a ControlChannelError
func IsControlChannel(err error) bool {
	var cce *ControlChannelError
	return errors.As(err, &cce)
}

// DuplicateIdentityError indicates two backends were registered under the
// same identity. This is a configuration mistake and is fatal at startup.
type DuplicateIdentityError struct {
	Identity PlayerIdentity
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("player %q already registered", e.Identity)
}

// IsDuplicateIdentity reports whether err is (or wraps) a DuplicateIdentityError
func IsDuplicateIdentity(err error) bool {
	var die *DuplicateIdentityError
	return errors.As(err, &die)
}
