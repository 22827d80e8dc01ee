package classifier

import "termslens/internal/domain"

// Template is the presentation block a surface shows for a category.
type Template struct {
	Category    domain.Category `json:"category"`
	Label       string          `json:"label"`
	Title       string          `json:"title"`
	Subtitle    string          `json:"subtitle"`
	Features    []string        `json:"features"`
	Placeholder string          `json:"placeholder"`
	Greeting    string          `json:"greeting"`
}

var templates = map[domain.Category]Template{
	domain.CategorySaaS: {
		Label:       "SaaS Platform",
		Title:       "SaaS Terms Assistant",
		Subtitle:    "Help with software licensing, usage policies, and service terms",
		Features:    []string{"Service Terms", "Data Processing", "Usage Limits", "Compliance"},
		Placeholder: "Ask about service terms, data usage, licensing, or compliance...",
		Greeting:    "I can help you understand software licensing, data processing terms, usage limits and compliance obligations. What would you like to know?",
	},
	domain.CategoryEcommerce: {
		Label:       "E-commerce",
		Title:       "E-commerce Terms Assistant",
		Subtitle:    "Help with purchase terms, returns, shipping, and consumer rights",
		Features:    []string{"Purchase Terms", "Return Policy", "Shipping", "Consumer Rights"},
		Placeholder: "Ask about purchase terms, returns, shipping policies, or warranties...",
		Greeting:    "I can help you understand purchase terms, return policies, shipping conditions and your consumer rights. What would you like to know?",
	},
	domain.CategoryHealthcare: {
		Label:       "Healthcare",
		Title:       "Healthcare Terms Assistant",
		Subtitle:    "Help with HIPAA compliance, medical terms, and patient rights",
		Features:    []string{"HIPAA Compliance", "Patient Rights", "Medical Terms", "Privacy"},
		Placeholder: "Ask about HIPAA, patient rights, medical policies, or privacy terms...",
		Greeting:    "I can help you understand HIPAA compliance, patient rights, medical service terms, privacy policies and healthcare regulations. How can I assist you?",
	},
	domain.CategoryFintech: {
		Label:       "FinTech",
		Title:       "FinTech Terms Assistant",
		Subtitle:    "Help with financial terms, regulations, and compliance requirements",
		Features:    []string{"Financial Terms", "Compliance", "Risk Disclosure", "Regulations"},
		Placeholder: "Ask about financial terms, regulations, compliance, or risk disclosures...",
		Greeting:    "I can help you understand fees, risk disclosures, regulatory compliance and account terms. What would you like to know?",
	},
	domain.CategorySocial: {
		Label:       "Social Media",
		Title:       "Social Media Terms Assistant",
		Subtitle:    "Help with community guidelines, content policies, and user rights",
		Features:    []string{"Community Guidelines", "Content Policy", "User Rights", "Moderation"},
		Placeholder: "Ask about community guidelines, content policies, or user rights...",
		Greeting:    "I can help you understand community guidelines, content ownership, moderation and your rights as a user. What would you like to know?",
	},
	domain.CategoryDefault: {
		Label:       "General",
		Title:       "Terms & Conditions Assistant",
		Subtitle:    "Help with general terms, policies, and legal documents",
		Features:    []string{"Terms of Service", "Privacy Policy", "Legal Terms", "User Rights"},
		Placeholder: "Ask about our terms of service, privacy policy, or any legal questions...",
		Greeting:    "I can help you understand terms of service, privacy policies and other legal documents. What would you like to know?",
	},
}

// TemplateFor returns the template for c, falling back to Default.
func TemplateFor(c domain.Category) Template {
	t, ok := templates[c]
	if !ok {
		c = domain.CategoryDefault
		t = templates[c]
	}
	t.Category = c
	t.Features = append([]string(nil), t.Features...)
	return t
}

// Templates returns every template in classifier order.
func Templates() []Template {
	out := make([]Template, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		out = append(out, TemplateFor(c))
	}
	return out
}
