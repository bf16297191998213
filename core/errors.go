package core

import (
	"errors"
	"fmt"
)

var (
	ErrIdentityUnavailable   = errors.New("no non-loopback interface with a hardware address")
	ErrDiscoveryBind         = errors.New("failed to bind discovery socket")
	ErrMulticastJoin         = errors.New("failed to join multicast group")
	ErrMalformedAnnouncement = errors.New("malformed announcement")
	ErrFileUnavailable       = errors.New("file unavailable")
	ErrInvalidField          = errors.New("invalid announcement field")
	ErrTransferFailed        = errors.New("transfer failed")
	ErrRequestLineTooLong    = errors.New("request line too long")
)

// Reason classifies why a transfer session ended in Failed.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonCancelled       Reason = "cancelled"
	ReasonConnectionReset Reason = "connection reset"
	ReasonTimeout         Reason = "timeout"
	ReasonStorageError    Reason = "storage error"
	ReasonConnectFailed   Reason = "connect failed"
	ReasonNotFound        Reason = "not found"
	ReasonSizeMismatch    Reason = "size mismatch"
)

// TransferError is returned by the transfer client for every failed pull.
// Received is the number of bytes delivered to the caller before the failure.
type TransferError struct {
	Reason   Reason
	Received int64
	Err      error
}

func (e *TransferError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transfer failed: %s after %d bytes", e.Reason, e.Received)
	}
	return fmt.Sprintf("transfer failed: %s after %d bytes: %v", e.Reason, e.Received, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func (e *TransferError) Is(target error) bool {
	return target == ErrTransferFailed
}
