package domain

// Secret holds a credential that must never appear in logs or error
// messages. Both String and GoString return a placeholder so accidental
// formatting cannot leak the value; collaborators that genuinely need the
// plaintext call Reveal.
type Secret struct {
	value string
}

func NewSecret(value string) Secret {
	return Secret{value: value}
}

func (s Secret) Reveal() string { return s.value }

func (s Secret) Empty() bool { return s.value == "" }

func (s Secret) String() string { return "[redacted]" }

func (s Secret) GoString() string { return "domain.Secret{[redacted]}" }
