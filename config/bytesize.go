package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ByteSize wraps int64 for YAML unmarshaling of strings like "256MB", "10GB".
type ByteSize int64

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*b = ByteSize(n)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b = ByteSize(parsed)

	return nil
}

func (b ByteSize) MarshalYAML() (any, error) {
	return b.String(), nil
}

func (b ByteSize) String() string {
	units := []struct {
		suffix string
		size   int64
	}{
		{"TB", 1 << 40},
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
	}
	for _, u := range units {
		if b != 0 && int64(b)%u.size == 0 {
			return strconv.FormatInt(int64(b)/u.size, 10) + u.suffix
		}
	}

	return strconv.FormatInt(int64(b), 10)
}

// ParseByteSize parses a plain byte count or a count with a binary unit
// suffix (B, KB, MB, GB, TB), e.g. "64MB".
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if len(s) == 0 {
		return 0, fmt.Errorf("empty byte size")
	}

	var multiplier int64 = 1
	numStr := strings.ToUpper(s)

	switch {
	case strings.HasSuffix(numStr, "KB"):
		multiplier = 1 << 10
		numStr = numStr[:len(numStr)-2]
	case strings.HasSuffix(numStr, "MB"):
		multiplier = 1 << 20
		numStr = numStr[:len(numStr)-2]
	case strings.HasSuffix(numStr, "GB"):
		multiplier = 1 << 30
		numStr = numStr[:len(numStr)-2]
	case strings.HasSuffix(numStr, "TB"):
		multiplier = 1 << 40
		numStr = numStr[:len(numStr)-2]
	case strings.HasSuffix(numStr, "B"):
		numStr = numStr[:len(numStr)-1]
	}

	n, err := strconv.ParseInt(strings.TrimSpace(numStr), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid byte size %q: negative", s)
	}
	if n > math.MaxInt64/multiplier {
		return 0, fmt.Errorf("invalid byte size %q: overflows int64", s)
	}

	return n * multiplier, nil
}
