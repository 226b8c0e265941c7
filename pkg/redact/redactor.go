package redact

import (
	"regexp"
	"strings"

	"github.com/noah-isme/activity-audit-api/pkg/props"
)

// MaskToken replaces booleans, numbers and short secrets wholesale.
const MaskToken = "[REDACTED]"

// DefaultKeyPatterns are matched case-insensitively as substrings of property keys.
var DefaultKeyPatterns = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"credential",
	"private_key",
	"authorization",
	"cookie",
	"session_id",
	"ssn",
	"credit_card",
	"card_number",
	"cvv",
}

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	ipv4Pattern  = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|1?[0-9]?[0-9])\.){3}(?:25[0-5]|2[0-4][0-9]|1?[0-9]?[0-9])\b`)
	cardPattern  = regexp.MustCompile(`\b(?:[0-9][ -]?){12,18}[0-9]\b`)
)

// Options tunes masking behaviour.
type Options struct {
	ExtraKeys []string
	KeepChars int
	MaskChar  rune
}

// Fields is the redacted output for one activity draft.
type Fields struct {
	Properties props.Value
	IPAddress  string
	UserAgent  string
}

// Redactor masks sensitive keys and sensitive-looking content. It holds no
// mutable state and is safe for concurrent use.
type Redactor struct {
	keys      []string
	keepChars int
	maskChar  string
}

// New builds a Redactor with defaults applied.
func New(opts Options) *Redactor {
	if opts.KeepChars <= 0 {
		opts.KeepChars = 4
	}
	if opts.MaskChar == 0 {
		opts.MaskChar = '*'
	}
	keys := make([]string, 0, len(DefaultKeyPatterns)+len(opts.ExtraKeys))
	for _, k := range append(append([]string{}, DefaultKeyPatterns...), opts.ExtraKeys...) {
		k = normalizeKey(k)
		if k != "" {
			keys = append(keys, k)
		}
	}
	return &Redactor{keys: keys, keepChars: opts.KeepChars, maskChar: string(opts.MaskChar)}
}

// Redact masks the property tree and the free-form user agent. The IP address is
// the record's designated source field and is only trimmed; brute-force grouping
// depends on it.
func (r *Redactor) Redact(properties props.Value, ipAddress, userAgent string) Fields {
	return Fields{
		Properties: r.value(properties, false),
		IPAddress:  strings.TrimSpace(ipAddress),
		UserAgent:  r.maskContent(userAgent),
	}
}

// MaskText masks sensitive content patterns inside free text such as a description.
func (r *Redactor) MaskText(s string) string {
	return r.maskContent(s)
}

// IsSensitiveKey reports whether key matches one of the configured patterns.
func (r *Redactor) IsSensitiveKey(key string) bool {
	normalized := normalizeKey(key)
	if normalized == "" {
		return false
	}
	for _, pattern := range r.keys {
		if strings.Contains(normalized, pattern) {
			return true
		}
	}
	return false
}

// containsSensitiveContent reports whether s holds an email, IPv4 address or card-like digit run.
func containsSensitiveContent(s string) bool {
	return emailPattern.MatchString(s) || ipv4Pattern.MatchString(s) || cardPattern.MatchString(s)
}

func (r *Redactor) value(v props.Value, sensitive bool) props.Value {
	switch v.Kind {
	case props.KindMap:
		out := props.Object()
		for _, f := range v.Fields {
			out = out.Set(f.Key, r.value(f.Value, sensitive || r.IsSensitiveKey(f.Key)))
		}
		return out
	case props.KindList:
		items := make([]props.Value, len(v.Items))
		for i, item := range v.Items {
			items[i] = r.value(item, sensitive)
		}
		return props.List(items...)
	case props.KindString:
		if sensitive {
			return props.String(r.mask(v.Str))
		}
		return props.String(r.maskContent(v.Str))
	case props.KindNumber:
		if sensitive || cardPattern.MatchString(props.FormatNumber(v.Num)) {
			return props.String(MaskToken)
		}
		return v
	case props.KindBool:
		if sensitive {
			return props.String(MaskToken)
		}
		return v
	default:
		return v
	}
}

func (r *Redactor) maskContent(s string) string {
	if !containsSensitiveContent(s) {
		return s
	}
	for _, pattern := range []*regexp.Regexp{emailPattern, cardPattern, ipv4Pattern} {
		s = pattern.ReplaceAllStringFunc(s, r.mask)
	}
	return s
}

// mask keeps keepChars on both ends and replaces the interior. Values too short
// to keep anything are masked entirely. Masking a masked value is a no-op.
func (r *Redactor) mask(s string) string {
	if s == "" || s == MaskToken {
		return s
	}
	runes := []rune(s)
	if len(runes) <= r.keepChars*2 {
		return strings.Repeat(r.maskChar, len(runes))
	}
	interior := len(runes) - r.keepChars*2
	return string(runes[:r.keepChars]) + strings.Repeat(r.maskChar, interior) + string(runes[len(runes)-r.keepChars:])
}

func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.NewReplacer("-", "_", " ", "_", ".", "_").Replace(key)
}
