package search

import (
	"strings"

	"github.com/bets3435-dev/book-search-app/internal/models"
)

// ProcessRequest trims the text fields of req and validates it. Violations are ErrInvalidRequest.
// A blank query becomes empty, so it lists records instead of running the semantic branch.
func ProcessRequest(req *models.SearchRequest) error {
	if req == nil {
		return invalidRequest("missing request")
	}
	req.Query = strings.TrimSpace(req.Query)
	req.Category = strings.TrimSpace(req.Category)
	if err := req.Validate(); err != nil {
		return invalidRequest(err.Error())
	}
	return nil
}
