package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"termslens/internal/domain"
)

// Agent actions.
const (
	ActionScan Action = "scan"
)

// Coordinator actions.
const (
	ActionSite       Action = "site"
	ActionRescan     Action = "rescan"
	ActionAnalyze    Action = "analyze"
	ActionAsk        Action = "ask"
	ActionInvalidate Action = "invalidate"
	ActionCategories Action = "categories"
)

// ScanRequest asks the agent to scan a page. When Page is set the agent scans
// it as given instead of loading URL.
type ScanRequest struct {
	URL  string       `json:"url" validate:"required_without=Page"`
	Page *domain.Page `json:"page,omitempty"`
}

type SiteRequest struct {
	URL string `json:"url" validate:"required"`
}

type RescanRequest struct {
	URL  string          `json:"url" validate:"required"`
	Hint domain.Category `json:"hint,omitempty" validate:"omitempty,oneof=saas ecommerce healthcare fintech social default"`
	Page *domain.Page    `json:"page,omitempty"`
	// Wait blocks the response until the scan finishes.
	Wait bool `json:"wait,omitempty"`
}

// AnalyzeRequest hands the coordinator a scan the agent already performed.
type AnalyzeRequest struct {
	URL  string            `json:"url" validate:"required"`
	Hint domain.Category   `json:"hint,omitempty" validate:"omitempty,oneof=saas ecommerce healthcare fintech social default"`
	Scan domain.ScanResult `json:"scan"`
	Wait bool              `json:"wait,omitempty"`
}

type AskRequest struct {
	URL      string `json:"url" validate:"required"`
	Question string `json:"question" validate:"required,max=2000"`
}

type AskResponse struct {
	Answer string `json:"answer"`
	Intent string `json:"intent"`
}

// RescanResponse is returned for rescan and analyze. Started is false when a
// scan for the site was already running; Record is then that scan's status.
type RescanResponse struct {
	Started bool        `json:"started"`
	Record  domain.View `json:"record"`
	Summary string      `json:"summary,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks v's struct tags and returns a readable error.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return errors.New("invalid payload: " + strings.Join(msgs, ", "))
}

// Decode unmarshals a request payload into v and validates it.
func Decode(req Request, v any) error {
	if len(req.Payload) == 0 {
		return Validate(v)
	}
	if err := json.Unmarshal(req.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", req.Action, err)
	}
	return Validate(v)
}
