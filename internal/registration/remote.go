package registration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/evidenceledger/oadrvtn/internal/errl"
	"github.com/evidenceledger/oadrvtn/internal/models"
)

// Remote delegates the decision to an enrollment service. Requests are POSTed as
// JSON with an access token obtained through the OAuth2 client credentials grant.
type Remote struct {
	url    string
	client *http.Client
}

// RemoteConfig configures a Remote decider.
type RemoteConfig struct {
	URL          string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// NewRemote creates a Remote decider. The token is cached and refreshed by the client.
func NewRemote(ctx context.Context, cfg RemoteConfig) *Remote {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	return &Remote{url: cfg.URL, client: cc.Client(ctx)}
}

func (r *Remote) Decide(ctx context.Context, req models.RegistrationRequest) (Decision, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Decision{}, errl.Errorf("failed to encode registration request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return Decision{}, errl.Errorf("failed to create decision request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return Decision{}, errl.Errorf("failed to call enrollment service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Decision{}, errl.Errorf("enrollment service returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var dec Decision
	if err := json.NewDecoder(resp.Body).Decode(&dec); err != nil {
		return Decision{}, errl.Errorf("failed to decode enrollment decision: %w", err)
	}
	if !dec.Accepted {
		return Decision{}, nil
	}
	return dec, nil
}
