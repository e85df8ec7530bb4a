package addr

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// Address identifies a node endpoint. It doubles as the network destination
// and as the ring hash input (through String).
type Address struct {
	ID   uint32
	Port uint16
}

// New returns the address for the given id and port.
func New(id uint32, port uint16) Address {
	return Address{ID: id, Port: port}
}

// String returns the "<id>:<port>" form used for hashing and logging.
func (a Address) String() string {
	return strconv.FormatUint(uint64(a.ID), 10) + ":" + strconv.FormatUint(uint64(a.Port), 10)
}

// IsZero reports whether a is the null address.
func (a Address) IsZero() bool {
	return a.ID == 0 && a.Port == 0
}

// Compare orders addresses by ID, then by port.
func Compare(a, b Address) int {
	if c := cmp.Compare(a.ID, b.ID); c != 0 {
		return c
	}
	return cmp.Compare(a.Port, b.Port)
}

// Parse parses the "<id>:<port>" form produced by String.
func Parse(s string) (Address, error) {
	idStr, portStr, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Address{}, fmt.Errorf("invalid address %q (expected id:port)", s)
	}

	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address id %q: %w", idStr, err)
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address port %q: %w", portStr, err)
	}

	return Address{ID: uint32(id), Port: uint16(port)}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// UnmarshalText lets addresses appear directly in YAML and flag values.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}
