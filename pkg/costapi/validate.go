package costapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// User-facing validation messages. Upstream error detail is never passed through.
const (
	MsgProjectIDRequired = "Project ID is required"
	MsgProjectNotFound   = "Project not found in this organization"
	MsgAccessDenied      = "Admin key does not have access to this project"
	MsgValidationTimeout = "Validation request timed out. Please try again."
	MsgValidationFailed  = "Unable to validate project ID. Please try again later."
)

type validationKey struct {
	projectID string
	keySuffix string
}

// ValidateProjectID checks that externalProjectID exists and is reachable with
// credential. Results are cached per project id and credential suffix.
func (c *Client) ValidateProjectID(ctx context.Context, credential, externalProjectID string) ValidationResult {
	externalProjectID = strings.TrimSpace(externalProjectID)
	if externalProjectID == "" {
		return ValidationResult{Error: MsgProjectIDRequired}
	}

	key := validationKey{projectID: externalProjectID, keySuffix: keySuffix(credential)}
	if cached, ok := c.validation.Get(key); ok {
		return cached
	}

	result, cacheable := c.validateUpstream(ctx, credential, externalProjectID)
	if cacheable {
		c.validation.Set(key, result)
	}
	return result
}

func (c *Client) validateUpstream(ctx context.Context, credential, projectID string) (ValidationResult, bool) {
	path := "/v1/organization/projects/" + url.PathEscape(projectID) + "/api_keys?limit=1"

	resp, err := c.do(ctx, "validate project", credential, path)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return ValidationResult{Error: MsgValidationTimeout}, false
		}
		return ValidationResult{Error: MsgValidationFailed}, false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return ValidationResult{Valid: true}, true
	case resp.StatusCode == http.StatusNotFound:
		return ValidationResult{Error: MsgProjectNotFound}, true
	case resp.StatusCode == http.StatusForbidden:
		return ValidationResult{Error: MsgAccessDenied}, true
	default:
		return ValidationResult{Error: MsgValidationFailed}, true
	}
}

func keySuffix(credential string) string {
	if len(credential) <= 4 {
		return credential
	}
	return credential[len(credential)-4:]
}
