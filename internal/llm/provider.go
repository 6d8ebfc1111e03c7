// Package llm abstracts the AI-completion service used for category
// and tag suggestions. Providers return structured responses; callers
// treat any provider error as "no suggestion" and move on.
package llm

import "context"

// Provider defines the completion calls used by services.
type Provider interface {
	Categorize(ctx context.Context, req CategorizeRequest) (CategorizeResponse, error)
	SuggestTags(ctx context.Context, req TagRequest) (TagResponse, error)
}

type TransactionInput struct {
	PayeeName string `json:"payee_name"`
	Amount    int64  `json:"amount"`
	Date      string `json:"date"`
	Account   string `json:"account"`
	Memo      string `json:"memo,omitempty"`
}

// PatternHint carries a learned payee/category prior so the model can
// stay consistent with the user's history.
type PatternHint struct {
	PayeeName  string  `json:"payee_name"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

type CategorizeRequest struct {
	Transaction TransactionInput `json:"transaction"`
	Categories  []string         `json:"categories"`
	Patterns    []PatternHint    `json:"patterns,omitempty"`
}

type CategorizeResponse struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

type TagRequest struct {
	Transaction  TransactionInput `json:"transaction"`
	ExistingTags []string         `json:"existing_tags"`
	MaxTags      int              `json:"max_tags"`
}

type TagResponse struct {
	Tags []string `json:"tags"`
}
