package triage

// Trust is the outcome of classifying a PR author.
type Trust int

const (
	Untrusted Trust = iota
	Trusted
)

func (t Trust) String() string {
	if t == Trusted {
		return "trusted"
	}
	return "untrusted"
}

// DefaultTrustedAuthors is the allow-set used when none is configured.
var DefaultTrustedAuthors = []string{
	"juninmd",
	"Copilot",
	"imgbot[bot]",
	"renovate[bot]",
	"dependabot[bot]",
	"Jules da Google",
	"google-labs-jules",
}

// DefaultSuggestionBots are the review bots whose suggestions are applied.
var DefaultSuggestionBots = []string{
	"Jules da Google",
	"google-labs-jules",
}

// TrustSet is a fixed set of author logins. Matching is exact and case-sensitive.
type TrustSet map[string]struct{}

func NewTrustSet(authors []string) TrustSet {
	s := make(TrustSet, len(authors))
	for _, a := range authors {
		s[a] = struct{}{}
	}
	return s
}

// Classify reports whether author is in the set.
func (s TrustSet) Classify(author string) Trust {
	if _, ok := s[author]; ok {
		return Trusted
	}
	return Untrusted
}
