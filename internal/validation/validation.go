package validation

import (
	"encoding/json"
	"net/http"

	"tigdiff/internal/errors"
	shared "tigdiff/shared/types"
)

// ValidateDetectRequest decodes and checks the body of a detect request. An
// empty old revision means the empty tree, a new revision is required.
func ValidateDetectRequest(r *http.Request) (*shared.DetectRequest, error) {
	var req shared.DetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.ValidationError("invalid request body", nil)
	}

	if req.New == "" {
		return nil, errors.ValidationError("new revision is required", nil)
	}

	if req.Rewrites != nil {
		if err := req.Rewrites.Validate(); err != nil {
			return nil, errors.ValidationError("invalid rewrites options", err.Error())
		}
	}

	return &req, nil
}
