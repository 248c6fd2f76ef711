package viewfactor

import (
	"fmt"
	"strings"
)

// Kind selects a view-factor model.
type Kind int

const (
	// KindParallel treats the receiver as parallel to the disk.
	KindParallel Kind = iota
	// KindOrientedApprox scales the parallel value by the receiver's
	// incidence cosine.
	KindOrientedApprox
	// KindOrientedExact integrates the receiver orientation over every
	// patch of the disk.
	KindOrientedExact
)

var kindNames = map[Kind]string{
	KindParallel:       "parallel",
	KindOrientedApprox: "oriented_approx",
	KindOrientedExact:  "oriented_exact",
}

// Kinds returns every model kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindParallel, KindOrientedApprox, KindOrientedExact}
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind accepts the wire names ("parallel", "oriented_approx",
// "oriented_exact"), case-insensitively. Hyphens are treated as underscores.
func ParseKind(s string) (Kind, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for k, name := range kindNames {
		if name == norm {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown view factor model %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	s, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown view factor model %d", int(k))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
