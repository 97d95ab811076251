package client

import (
	"encoding/json"
	"fmt"

	internalhttp "github.com/fivetwenty-io/capi-facade/internal/http"
	"github.com/fivetwenty-io/capi-facade/pkg/capi"
)

// decodeResponse unmarshals a successful response body into v. A body that
// does not decode is reported as a transport error.
func decodeResponse(resp *internalhttp.Response, v interface{}, what string) error {
	err := json.Unmarshal(resp.Body, v)
	if err != nil {
		return capi.NewOperationError(capi.ErrTransport, resp.StatusCode, "malformed "+what+" response", fmt.Errorf("parsing %s: %w", what, err))
	}

	return nil
}
