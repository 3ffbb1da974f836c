package google

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/tradebook/internal/common"
	"google.golang.org/api/googleapi"
)

// mapError classifies API failures. 401 and 403 mean the credential was
// rejected, except for 403 quota reasons which are transient.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, common.ErrUnauthorized) {
		return err
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %w", common.ErrUnauthorized, err)
		case http.StatusForbidden:
			if isRateLimited(gerr) {
				return fmt.Errorf("%w: %w", common.ErrTransport, err)
			}
			return fmt.Errorf("%w: %w", common.ErrUnauthorized, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", common.ErrNotFound, err)
		}
	}
	return fmt.Errorf("%w: %w", common.ErrTransport, err)
}

func isRateLimited(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded":
			return true
		}
	}
	return false
}
