// Package action names the security-response operations that the protector gates.
package action

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownKind = errors.New("unknown action kind")

// Kind is one of the protected operations. Every Kind owns its own
// rate-limit bucket and circuit breaker.
type Kind int

const (
	LockScreen Kind = iota
	PlayAlarm
	ForceLogout
	Shutdown
	ExecuteScript
)

var names = [...]string{
	LockScreen:    "lockScreen",
	PlayAlarm:     "playAlarm",
	ForceLogout:   "forceLogout",
	Shutdown:      "shutdown",
	ExecuteScript: "executeScript",
}

// All returns every Kind in declaration order.
func All() []Kind {
	return []Kind{LockScreen, PlayAlarm, ForceLogout, Shutdown, ExecuteScript}
}

func (k Kind) Valid() bool {
	return k >= LockScreen && k <= ExecuteScript
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return names[k]
}

// ParseKind accepts the canonical camelCase name, case-insensitively.
// "lock_screen" and "lock-screen" are accepted too.
func ParseKind(s string) (Kind, error) {
	norm := strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(strings.TrimSpace(s)))
	for _, k := range All() {
		if strings.ToLower(names[k]) == norm {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(names[k]), nil
}

// UnmarshalText lets Kind be used as a YAML/JSON map key.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
