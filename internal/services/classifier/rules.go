package classifier

import (
	"strings"

	"termslens/internal/domain"
)

// Rule assigns Category when the hint names it or the URL contains a keyword.
type Rule struct {
	Category domain.Category
	Keywords []string
}

// Matches reports whether the rule fires for the given hint and URL.
func (r Rule) Matches(hint domain.Category, url string) bool {
	if hint != "" && hint == r.Category {
		return true
	}
	url = strings.ToLower(url)
	for _, k := range r.Keywords {
		if strings.Contains(url, k) {
			return true
		}
	}
	return false
}

// DefaultRules is evaluated top to bottom; the first match wins.
var DefaultRules = []Rule{
	{Category: domain.CategorySaaS, Keywords: []string{"saas", "app", "platform", "software"}},
	{Category: domain.CategoryEcommerce, Keywords: []string{"shop", "store", "commerce", "retail", "buy"}},
	{Category: domain.CategoryHealthcare, Keywords: []string{"health", "medical", "clinic", "hospital", "pharma"}},
	{Category: domain.CategoryFintech, Keywords: []string{"bank", "finance", "payment", "crypto", "invest"}},
	{Category: domain.CategorySocial, Keywords: []string{"social", "community", "forum", "network", "connect"}},
}

// Classifier maps a site to a Category.
type Classifier struct {
	rules []Rule
}

func New(rules []Rule) *Classifier {
	if rules == nil {
		rules = DefaultRules
	}
	return &Classifier{rules: rules}
}

// Classify always returns exactly one Category; unmatched sites are Default.
func (c *Classifier) Classify(site domain.SiteIdentity, hint domain.Category) domain.Category {
	for _, r := range c.rules {
		if r.Matches(hint, site.Domain) {
			return r.Category
		}
	}
	return domain.CategoryDefault
}

// Classify uses DefaultRules.
func Classify(site domain.SiteIdentity, hint domain.Category) domain.Category {
	return New(nil).Classify(site, hint)
}
