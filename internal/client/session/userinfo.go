package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/tradebook/internal/common"
)

// UserInfo validates access tokens against the OIDC userinfo endpoint.
type UserInfo struct {
	endpoint string
	client   *http.Client
}

var _ Introspector = (*UserInfo)(nil)

func NewUserInfo(endpoint string, client *http.Client) *UserInfo {
	if client == nil {
		client = http.DefaultClient
	}
	return &UserInfo{endpoint: endpoint, client: client}
}

func (u *UserInfo) Introspect(ctx context.Context, accessToken string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.endpoint, nil)
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: userinfo: %w", common.ErrTransport, err)
	}
	defer resp.Body.Close()

	if err := mapHTTPStatus(resp); err != nil {
		return Identity{}, err
	}

	var id Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return Identity{}, fmt.Errorf("%w: decode userinfo: %w", common.ErrTransport, err)
	}
	return id, nil
}

// mapHTTPStatus turns a non-2xx response into a classified error.
func mapHTTPStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(body))

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: userinfo status %d: %s", common.ErrUnauthorized, resp.StatusCode, msg)
	default:
		return fmt.Errorf("%w: userinfo status %d: %s", common.ErrTransport, resp.StatusCode, msg)
	}
}
