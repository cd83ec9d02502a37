package database

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxIdentifierLength is the longest collection, column or filter key name
// accepted by the validators.
const MaxIdentifierLength = 64

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateIdentifier trims name and checks it against the identifier
// grammar [A-Za-z_][A-Za-z0-9_]* with at most MaxIdentifierLength
// characters. It returns the trimmed name.
func ValidateIdentifier(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: %w: identifier cannot be empty", ErrConfig, ErrInvalidIdentifier)
	}
	if len(name) > MaxIdentifierLength {
		return "", fmt.Errorf("%w: %w: identifier too long (max %d characters)", ErrConfig, ErrInvalidIdentifier, MaxIdentifierLength)
	}
	if !identifierPattern.MatchString(name) {
		return "", fmt.Errorf("%w: %w: invalid identifier format: %q", ErrConfig, ErrInvalidIdentifier, name)
	}
	return name, nil
}

// ValidateFilter validates every key of filter. Values are passed through
// unchecked. A nil filter yields an empty one. Keys that are equal after
// trimming are rejected.
func ValidateFilter(filter Filter) (Filter, error) {
	validated := make(Filter, len(filter))
	for key, value := range filter {
		name, err := ValidateIdentifier(key)
		if err != nil {
			return nil, fmt.Errorf("filter key: %w", err)
		}
		if _, dup := validated[name]; dup {
			return nil, fmt.Errorf("filter key: %w: %w: duplicate key %q", ErrConfig, ErrInvalidIdentifier, name)
		}
		validated[name] = value
	}
	return validated, nil
}

func ValidateColumns(columns []string) ([]string, error) {
	validated := make([]string, 0, len(columns))
	for _, column := range columns {
		name, err := ValidateIdentifier(column)
		if err != nil {
			return nil, fmt.Errorf("column: %w", err)
		}
		validated = append(validated, name)
	}
	return validated, nil
}
