package mqtt

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidTopic is returned for topic names that cannot be published to.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrInvalidFilter is returned for malformed subscription filters.
	ErrInvalidFilter = errors.New("mqtt: invalid topic filter")
)

// Topic joins non-empty segments with '/'. Leading and trailing slashes of
// each segment are trimmed so a namespace of "robots/" and a key of "g1"
// yield "robots/g1".
func Topic(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s = strings.Trim(s, "/"); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

// ValidateTopic checks that name is usable as a publish topic.
func ValidateTopic(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	case strings.ContainsAny(name, "+#"):
		return fmt.Errorf("%w: %q contains a wildcard", ErrInvalidTopic, name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: %q contains NUL", ErrInvalidTopic, name)
	}
	return nil
}

// ValidateFilter checks that filter is a well formed subscription filter.
// '+' must occupy a whole level and '#' must be the last level.
func ValidateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: empty", ErrInvalidFilter)
	}
	levels := strings.Split(filter, "/")
	for i, lv := range levels {
		switch {
		case lv == "#" && i != len(levels)-1:
			return fmt.Errorf("%w: %q has '#' before the last level", ErrInvalidFilter, filter)
		case lv != "#" && lv != "+" && strings.ContainsAny(lv, "+#"):
			return fmt.Errorf("%w: %q mixes wildcards into a level", ErrInvalidFilter, filter)
		}
	}
	return nil
}

// Match reports whether topic matches filter.
func Match(filter, topic string) bool {
	for {
		fl, frest, fmore := strings.Cut(filter, "/")
		if fl == "#" {
			return true
		}
		tl, trest, tmore := strings.Cut(topic, "/")
		if fl != "+" && fl != tl {
			return false
		}
		if !fmore || !tmore {
			// "a/#" also matches "a".
			return fmore == tmore || (fmore && frest == "#")
		}
		filter, topic = frest, trest
	}
}
