package policy

import "strings"

// Flags are the confirmation attributes attached to an action.
type Flags struct {
	RequiresConfirmation bool
	IsIrreversible       bool
}

// defaultKeywords mark a step description as destructive or permanent. The
// reasoning model is untrusted for safety-critical classification, so any
// match forces confirmation regardless of what the model declared.
var defaultKeywords = []string{
	"delete", "remove", "send", "post", "publish", "submit",
	"purchase", "buy", "pay", "transfer", "confirm", "execute",
}

// Policy strengthens model-declared confirmation flags. It can only add
// restrictions, never lift them.
type Policy struct {
	keywords []string
}

func NewDefault() *Policy {
	return New(nil)
}

// New returns a policy matching the default keyword set plus extra entries.
func New(extra []string) *Policy {
	kws := make([]string, 0, len(defaultKeywords)+len(extra))
	kws = append(kws, defaultKeywords...)
	for _, k := range extra {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			kws = append(kws, k)
		}
	}
	return &Policy{keywords: kws}
}

// Strengthen applies the keyword backstop to the model's declared flags.
// A keyword match forces both flags true; an irreversible action always
// requires confirmation.
func (p *Policy) Strengthen(flags Flags, description string) Flags {
	if p.Matches(description) {
		flags.RequiresConfirmation = true
		flags.IsIrreversible = true
	}
	if flags.IsIrreversible {
		flags.RequiresConfirmation = true
	}
	return flags
}

// Matches reports whether the description contains any irreversible keyword,
// case-insensitive substring match.
func (p *Policy) Matches(description string) bool {
	lowered := strings.ToLower(description)
	for _, kw := range p.keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}
