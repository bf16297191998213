package core

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Separator delimits the fields of an announcement. It must never appear in a
// file name or identity on the network.
const Separator = "|"

const (
	announcementFields = 3
	MaxDatagramSize    = 8 * 1024
)

// Offer is a file made available by a node.
type Offer struct {
	Sender   NodeIdentity
	FileName string
	FileSize int64
}

func (o Offer) String() string {
	return fmt.Sprintf("%s from %s (%d bytes)", o.FileName, o.Sender, o.FileSize)
}

// Encode serializes an offer as sender|name|size.
func Encode(o Offer) ([]byte, error) {
	if err := validateField("sender", string(o.Sender)); err != nil {
		return nil, err
	}
	if err := validateField("file name", o.FileName); err != nil {
		return nil, err
	}
	if o.FileSize < 0 {
		return nil, fmt.Errorf("%w: negative file size %d", ErrInvalidField, o.FileSize)
	}

	var buf bytes.Buffer
	buf.Grow(len(o.Sender) + len(o.FileName) + 22)
	buf.WriteString(string(o.Sender))
	buf.WriteString(Separator)
	buf.WriteString(o.FileName)
	buf.WriteString(Separator)
	buf.WriteString(strconv.FormatInt(o.FileSize, 10))

	if buf.Len() > MaxDatagramSize {
		return nil, fmt.Errorf("%w: announcement exceeds %d bytes", ErrInvalidField, MaxDatagramSize)
	}

	return buf.Bytes(), nil
}

// Decode parses a datagram. It returns either a complete offer or
// ErrMalformedAnnouncement.
func Decode(b []byte) (Offer, error) {
	if len(b) > MaxDatagramSize {
		return Offer{}, fmt.Errorf("%w: %d bytes", ErrMalformedAnnouncement, len(b))
	}

	fields := strings.Split(string(b), Separator)
	if len(fields) != announcementFields {
		return Offer{}, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedAnnouncement, announcementFields, len(fields))
	}

	sender, name, sizeStr := fields[0], fields[1], fields[2]
	if sender == "" || name == "" {
		return Offer{}, fmt.Errorf("%w: empty field", ErrMalformedAnnouncement)
	}

	// ParseUint rejects signs, so "-1" and "+1" are both malformed.
	size, err := strconv.ParseUint(sizeStr, 10, 63)
	if err != nil {
		return Offer{}, fmt.Errorf("%w: bad size %q", ErrMalformedAnnouncement, sizeStr)
	}

	return Offer{
		Sender:   NodeIdentity(sender),
		FileName: name,
		FileSize: int64(size),
	}, nil
}

func validateField(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: empty %s", ErrInvalidField, name)
	}
	if strings.Contains(value, Separator) {
		return fmt.Errorf("%w: %s %q contains %q", ErrInvalidField, name, value, Separator)
	}
	return nil
}
