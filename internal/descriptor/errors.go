package descriptor

import "fmt"

// MalformedDescriptorError reports a descriptor with absent or invalid fields.
type MalformedDescriptorError struct {
	// Kind is the record kind: "target", "module" or "external".
	Kind   string
	Name   string
	Reason string
	// Source is the file the descriptor came from, when known.
	Source string
}

func (e *MalformedDescriptorError) Error() string {
	name := e.Name
	if name == "" {
		name = "<unnamed>"
	}
	msg := fmt.Sprintf("malformed %s descriptor %q: %s", e.Kind, name, e.Reason)
	if e.Source != "" {
		msg += " (in " + e.Source + ")"
	}
	return msg
}

func malformed(kind, name, reason string) error {
	return &MalformedDescriptorError{Kind: kind, Name: name, Reason: reason}
}

// WithSource annotates a MalformedDescriptorError with its origin file and
// returns any other error unchanged.
func WithSource(err error, source string) error {
	if m, ok := err.(*MalformedDescriptorError); ok && m.Source == "" {
		cp := *m
		cp.Source = source
		return &cp
	}
	return err
}

// DuplicateNameError reports two descriptors sharing one identity.
type DuplicateNameError struct {
	Kind string
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate %s name %q", e.Kind, e.Name)
}
