package services

import (
	"fmt"
	"net/mail"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/custodia-labs/filer/internal/core/domain"
)

// Match strengths scale a rule's base confidence by how specific the hit was.
const (
	strengthExact        = 1.0
	strengthPattern      = 0.9
	strengthKeyword      = 0.8
	strengthKeywordMulti = 0.9
)

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z]+)\}`)

// RuleEngine evaluates an ordered rule set against file records.
// It holds no mutable state: the same record and rule set always produce
// the same result.
type RuleEngine struct {
	ruleSet     domain.RuleSet
	rules       []compiledRule
	identifiers map[string][]*regexp.Regexp
}

type compiledRule struct {
	domain.ClassificationRule
	index        int
	regex        *regexp.Regexp
	glob         string
	keywords     []string
	extensions   map[string]bool
	addresses    map[string]bool
	domains      map[string]bool
	placeholders []string
}

// NewRuleEngine validates and compiles a rule set.
// Any invalid rule fails with domain.ErrRuleSet.
func NewRuleEngine(rs domain.RuleSet) (*RuleEngine, error) {
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	if rs.ReviewFloor == 0 {
		rs.ReviewFloor = domain.DefaultReviewFloor
	}
	if len(rs.Identifiers) == 0 {
		rs.Identifiers = domain.DefaultIdentifierPatterns()
	}

	e := &RuleEngine{
		ruleSet:     rs,
		rules:       make([]compiledRule, 0, len(rs.Rules)),
		identifiers: make(map[string][]*regexp.Regexp, len(rs.Identifiers)),
	}

	for name, patterns := range rs.Identifiers {
		for _, p := range patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("%w: identifier %s: %v", domain.ErrRuleSet, name, err)
			}
			e.identifiers[name] = append(e.identifiers[name], re)
		}
	}

	for i, rule := range rs.Rules {
		cr, err := compileRule(i, rule)
		if err != nil {
			return nil, err
		}
		for _, ph := range cr.placeholders {
			if !isKnownPlaceholder(ph) {
				return nil, fmt.Errorf("%w: rule %q: unknown placeholder {%s}", domain.ErrRuleSet, rule.Name, ph)
			}
			if (ph == domain.PlaceholderClientID || ph == domain.PlaceholderMatterID) && len(e.identifiers[ph]) == 0 {
				return nil, fmt.Errorf("%w: rule %q: no identifier pattern for {%s}", domain.ErrRuleSet, rule.Name, ph)
			}
		}
		e.rules = append(e.rules, cr)
	}

	return e, nil
}

func compileRule(i int, rule domain.ClassificationRule) (compiledRule, error) {
	cr := compiledRule{ClassificationRule: rule, index: i}

	if rule.Regex != "" {
		re, err := regexp.Compile(rule.Regex)
		if err != nil {
			return cr, fmt.Errorf("%w: rule %q: %v", domain.ErrRuleSet, rule.Name, err)
		}
		cr.regex = re
	}
	if rule.Glob != "" {
		cr.glob = strings.ToLower(rule.Glob)
		if _, err := path.Match(cr.glob, ""); err != nil {
			return cr, fmt.Errorf("%w: rule %q: glob: %v", domain.ErrRuleSet, rule.Name, err)
		}
	}
	for _, kw := range rule.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			cr.keywords = append(cr.keywords, kw)
		}
	}
	if len(rule.Extensions) > 0 {
		cr.extensions = make(map[string]bool, len(rule.Extensions))
		for _, ext := range rule.Extensions {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			cr.extensions[ext] = true
		}
	}
	if len(rule.Addresses) > 0 {
		cr.addresses = make(map[string]bool)
		cr.domains = make(map[string]bool)
		for _, addr := range rule.Addresses {
			addr = strings.ToLower(strings.TrimSpace(addr))
			if strings.HasPrefix(addr, "@") {
				cr.domains[addr[1:]] = true
			} else {
				cr.addresses[addr] = true
			}
		}
	}
	for _, m := range placeholderPattern.FindAllStringSubmatch(rule.Target, -1) {
		cr.placeholders = append(cr.placeholders, m[1])
	}
	return cr, nil
}

// RuleSet returns the rule set the engine was built from.
func (e *RuleEngine) RuleSet() domain.RuleSet {
	return e.ruleSet
}

// Classify evaluates every rule against the record and returns the
// highest-confidence destination.
func (e *RuleEngine) Classify(record *domain.FileRecord) domain.ClassificationResult {
	result := domain.ClassificationResult{
		Path:           record.Path,
		RuleSetVersion: e.ruleSet.Version,
	}

	resolved := make(map[string]string)
	for _, rule := range e.rules {
		strength := rule.strength(record)
		if strength == 0 {
			continue
		}
		dest, unresolved := e.render(rule, record, resolved)
		result.Matches = append(result.Matches, domain.RuleMatch{
			Rule:        rule.Name,
			Index:       rule.index,
			Signal:      rule.Signal,
			Destination: dest,
			Strength:    strength,
			Confidence:  rule.Confidence * strength,
			Unresolved:  unresolved,
		})
	}

	if len(result.Matches) == 0 {
		result.Destination = path.Join(domain.UnsortedDestination, record.Name())
		result.NeedsReview = true
		result.Reason = domain.ReviewReasonNoMatch
		return result
	}

	// Each destination's confidence is its strongest match; rules proposing
	// different destinations never combine. Ties go to the earlier rule.
	best := make(map[string]float64)
	first := make(map[string]int)
	for i, m := range result.Matches {
		if m.Confidence > best[m.Destination] {
			best[m.Destination] = m.Confidence
		}
		if _, ok := first[m.Destination]; !ok {
			first[m.Destination] = i
		}
	}
	destinations := make([]string, 0, len(best))
	for d := range best {
		destinations = append(destinations, d)
	}
	sort.Slice(destinations, func(i, j int) bool {
		a, b := destinations[i], destinations[j]
		if best[a] != best[b] {
			return best[a] > best[b]
		}
		return first[a] < first[b]
	})

	winner := destinations[0]
	var unresolved []string
	for i := range result.Matches {
		m := &result.Matches[i]
		if m.Destination != winner {
			m.Conflicting = true
			continue
		}
		if len(m.Unresolved) > 0 {
			unresolved = m.Unresolved
		}
	}

	result.Proposed = winner
	result.Confidence = best[winner]

	switch {
	case len(unresolved) > 0:
		result.Destination = path.Join(domain.UnresolvedDestination, record.Name())
		result.NeedsReview = true
		result.Reason = domain.ReviewReasonUnresolvedTemplates
	case result.Confidence < e.ruleSet.ReviewFloor:
		result.Destination = path.Join(winner, record.Name())
		result.NeedsReview = true
		result.Reason = domain.ReviewReasonLowConfidence
	default:
		result.Destination = path.Join(winner, record.Name())
	}
	return result
}

// strength returns the match strength of the rule against the record, or
// zero when the rule does not match.
func (r *compiledRule) strength(rec *domain.FileRecord) float64 {
	switch r.Signal {
	case domain.SignalFilename:
		name := rec.Name()
		if r.glob != "" {
			if ok, _ := path.Match(r.glob, strings.ToLower(name)); ok {
				return strengthExact
			}
		}
		if r.regex != nil && r.regex.MatchString(name) {
			return strengthPattern
		}

	case domain.SignalExtension:
		if r.extensions[rec.Extension()] {
			return strengthExact
		}

	case domain.SignalContent:
		if rec.TextSample == "" {
			return 0
		}
		if len(r.keywords) > 0 {
			text := strings.ToLower(rec.TextSample)
			var hits int
			for _, kw := range r.keywords {
				if strings.Contains(text, kw) {
					hits++
				}
			}
			switch {
			case hits > 1:
				return strengthKeywordMulti
			case hits == 1:
				return strengthKeyword
			}
		}
		if r.regex != nil && r.regex.MatchString(rec.TextSample) {
			return strengthKeyword
		}

	case domain.SignalSender:
		return r.addressStrength(splitAddresses(rec.Metadata[domain.MetaSender]))

	case domain.SignalRecipient:
		return r.addressStrength(splitAddresses(rec.Metadata[domain.MetaRecipients]))

	case domain.SignalAttribute:
		value, ok := rec.Attribute(r.Attribute)
		if !ok {
			return 0
		}
		if r.Equals != "" && strings.EqualFold(strings.TrimSpace(value), strings.TrimSpace(r.Equals)) {
			return strengthExact
		}
		if r.regex != nil && r.regex.MatchString(value) {
			return strengthPattern
		}
	}
	return 0
}

func (r *compiledRule) addressStrength(addrs []string) float64 {
	var best float64
	for _, addr := range addrs {
		if r.addresses[addr] {
			return strengthExact
		}
		if at := strings.LastIndexByte(addr, '@'); at >= 0 && r.domains[addr[at+1:]] {
			best = strengthPattern
		}
		if r.regex != nil && r.regex.MatchString(addr) {
			best = strengthPattern
		}
	}
	return best
}

// render fills the rule's target template. Placeholders that cannot be
// resolved stay in braces and are returned.
func (e *RuleEngine) render(rule compiledRule, rec *domain.FileRecord, cache map[string]string) (string, []string) {
	if len(rule.placeholders) == 0 {
		return path.Clean(rule.Target), nil
	}

	var unresolved []string
	out := placeholderPattern.ReplaceAllStringFunc(rule.Target, func(token string) string {
		name := token[1 : len(token)-1]
		value, ok := cache[name]
		if !ok {
			value = e.resolve(name, rec)
			cache[name] = value
		}
		if value == "" {
			unresolved = append(unresolved, name)
			return token
		}
		return value
	})
	return path.Clean(out), unresolved
}

// resolve extracts a placeholder value, searching the file name, then
// metadata in key order, then the text sample.
func (e *RuleEngine) resolve(name string, rec *domain.FileRecord) string {
	switch name {
	case domain.PlaceholderYear:
		if rec.Modified.IsZero() {
			return ""
		}
		return rec.Modified.UTC().Format("2006")
	case domain.PlaceholderMonth:
		if rec.Modified.IsZero() {
			return ""
		}
		return rec.Modified.UTC().Format("01")
	case domain.PlaceholderExt:
		return strings.TrimPrefix(rec.Extension(), ".")
	case domain.PlaceholderSender:
		addrs := splitAddresses(rec.Metadata[domain.MetaSender])
		if len(addrs) == 0 {
			return ""
		}
		if at := strings.LastIndexByte(addrs[0], '@'); at >= 0 {
			return sanitizeSegment(addrs[0][at+1:])
		}
		return ""
	}

	sources := []string{rec.Name()}
	keys := make([]string, 0, len(rec.Metadata))
	for k := range rec.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sources = append(sources, rec.Metadata[k])
	}
	sources = append(sources, rec.TextSample)

	for _, src := range sources {
		for _, re := range e.identifiers[name] {
			m := re.FindStringSubmatch(src)
			if m == nil {
				continue
			}
			value := m[0]
			if len(m) > 1 && m[1] != "" {
				value = m[1]
			}
			if value = sanitizeSegment(value); value != "" {
				return value
			}
		}
	}
	return ""
}

func isKnownPlaceholder(name string) bool {
	for _, p := range domain.KnownPlaceholders {
		if p == name {
			return true
		}
	}
	return false
}

// sanitizeSegment keeps a resolved value to a single path segment.
func sanitizeSegment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
	return s
}

// splitAddresses extracts lower-case addresses from a header-style list
// such as `"Smith, Jane" <jane@acme.com>, bob@acme.com`.
func splitAddresses(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	var out []string
	if parsed, err := mail.ParseAddressList(list); err == nil {
		for _, a := range parsed {
			out = append(out, strings.ToLower(a.Address))
		}
		return out
	}
	for _, part := range strings.Split(list, ",") {
		if part = strings.ToLower(strings.Trim(part, " <>\t")); strings.Contains(part, "@") {
			out = append(out, part)
		}
	}
	return out
}
