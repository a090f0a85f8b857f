package domain

import "fmt"

// SignalType identifies which attribute of a file a rule inspects.
type SignalType string

const (
	// SignalFilename matches the base name by glob or regex.
	SignalFilename SignalType = "filename"
	// SignalExtension matches the lower-case extension.
	SignalExtension SignalType = "extension"
	// SignalContent matches keywords or a regex in the extracted text.
	SignalContent SignalType = "content"
	// SignalSender matches the sender address of an email.
	SignalSender SignalType = "sender"
	// SignalRecipient matches any recipient address of an email.
	SignalRecipient SignalType = "recipient"
	// SignalAttribute matches a named metadata attribute.
	SignalAttribute SignalType = "attribute"
)

// String returns the string representation of the signal type.
func (s SignalType) String() string {
	return string(s)
}

// IsValid checks if the signal type is recognised.
func (s SignalType) IsValid() bool {
	switch s {
	case SignalFilename, SignalExtension, SignalContent,
		SignalSender, SignalRecipient, SignalAttribute:
		return true
	default:
		return false
	}
}

// ClassificationRule is one ordered entry of the rule set.
// Only the predicate fields relevant to Signal are consulted.
type ClassificationRule struct {
	// Name identifies the rule in results and audit events.
	Name string

	// Signal selects the attribute the rule inspects.
	Signal SignalType

	// Glob is a shell pattern matched against the whole file name.
	Glob string

	// Regex is matched against the signal's value.
	Regex string

	// Keywords are case-insensitive phrases searched in the content.
	Keywords []string

	// Extensions are lower-case extensions including the dot.
	Extensions []string

	// Addresses are email addresses; entries starting with "@" match a domain.
	Addresses []string

	// Attribute names the metadata key for SignalAttribute.
	Attribute string

	// Equals is the exact value for SignalAttribute.
	Equals string

	// Target is the destination folder template, relative to the taxonomy root.
	Target string

	// Confidence is the base weight in [0,1].
	Confidence float64
}

// Validate checks the rule's configuration without compiling patterns.
func (r ClassificationRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: rule without name", ErrRuleSet)
	}
	if !r.Signal.IsValid() {
		return fmt.Errorf("%w: rule %q: unknown signal %q", ErrRuleSet, r.Name, r.Signal)
	}
	if r.Target == "" {
		return fmt.Errorf("%w: rule %q: empty target", ErrRuleSet, r.Name)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("%w: rule %q: confidence %.2f outside [0,1]", ErrRuleSet, r.Name, r.Confidence)
	}

	var hasPredicate bool
	switch r.Signal {
	case SignalFilename:
		hasPredicate = r.Glob != "" || r.Regex != ""
	case SignalExtension:
		hasPredicate = len(r.Extensions) > 0
	case SignalContent:
		hasPredicate = len(r.Keywords) > 0 || r.Regex != ""
	case SignalSender, SignalRecipient:
		hasPredicate = len(r.Addresses) > 0 || r.Regex != ""
	case SignalAttribute:
		if r.Attribute == "" {
			return fmt.Errorf("%w: rule %q: attribute signal without attribute name", ErrRuleSet, r.Name)
		}
		hasPredicate = r.Equals != "" || r.Regex != ""
	}
	if !hasPredicate {
		return fmt.Errorf("%w: rule %q: no predicate for %s signal", ErrRuleSet, r.Name, r.Signal)
	}
	return nil
}

// Placeholders recognised in destination templates.
const (
	PlaceholderClientID = "ClientID"
	PlaceholderMatterID = "MatterID"
	PlaceholderYear     = "Year"
	PlaceholderMonth    = "Month"
	PlaceholderExt      = "Ext"
	PlaceholderSender   = "Sender"
)

// KnownPlaceholders lists every placeholder a template may use.
var KnownPlaceholders = []string{
	PlaceholderClientID,
	PlaceholderMatterID,
	PlaceholderYear,
	PlaceholderMonth,
	PlaceholderExt,
	PlaceholderSender,
}

// DefaultIdentifierPatterns returns the identifier patterns used when a
// rule set does not declare its own.
func DefaultIdentifierPatterns() map[string][]string {
	return map[string][]string{
		PlaceholderClientID: {
			`(?i)client[_\s-]*(?:id|no|num)?[_\s:#-]*(\w{3,20})`,
			`\b([A-Z]{2,5}-\d{3,6})\b`,
		},
		PlaceholderMatterID: {
			`(?i)matter[_\s-]*(?:id|no|num)?[_\s:#-]*(\w{3,20})`,
		},
	}
}

// RuleSet is the immutable rule configuration for one pipeline run.
type RuleSet struct {
	// Version is the sha256 of the rule file, used to diff outputs
	// across rule-set versions.
	Version string

	// Rules are evaluated in order; order is tie-break precedence.
	Rules []ClassificationRule

	// Identifiers maps a placeholder name to the ordered regexes that
	// extract it. The first capture group is the value.
	Identifiers map[string][]string

	// ReviewFloor forces review below this confidence.
	ReviewFloor float64
}

// Validate checks every rule and the rule-set level settings.
func (rs *RuleSet) Validate() error {
	if rs.ReviewFloor < 0 || rs.ReviewFloor > 1 {
		return fmt.Errorf("%w: review floor %.2f outside [0,1]", ErrRuleSet, rs.ReviewFloor)
	}
	seen := make(map[string]bool, len(rs.Rules))
	for _, r := range rs.Rules {
		if err := r.Validate(); err != nil {
			return err
		}
		if seen[r.Name] {
			return fmt.Errorf("%w: duplicate rule name %q", ErrRuleSet, r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}
