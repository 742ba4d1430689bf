package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JonasWeber/NomadBase/internal/pkg/env"
)

const defaultStripeAPIBaseURL = "https://api.stripe.com/v1"

// SubscriptionSnapshot is the processor-side view of a subscription at fetch
// time: status, price, period end and the metadata our checkout flow
// attached to it.
type SubscriptionSnapshot struct {
	ID               string
	Customer         string
	Status           string
	PriceID          string
	CurrentPeriodEnd *time.Time
	Metadata         map[string]string
}

// SubscriptionFetcher retrieves a subscription snapshot from the billing
// processor. Satisfied by *StripeClient; faked in tests.
type SubscriptionFetcher interface {
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*SubscriptionSnapshot, error)
}

type StripeClient struct {
	APIKey     string
	APIBaseURL string

	HTTPClient *http.Client
}

func NewStripeClient(apiKey string) *StripeClient {
	return &StripeClient{
		APIKey:     strings.TrimSpace(apiKey),
		APIBaseURL: strings.TrimSpace(env.GetEnv("STRIPE_API_BASE_URL", defaultStripeAPIBaseURL)),
		HTTPClient: &http.Client{
			// The processor applies its own webhook delivery timeout; a slow
			// snapshot fetch must not eat the whole delivery window.
			Timeout: 5 * time.Second,
		},
	}
}

func (c *StripeClient) RetrieveSubscription(ctx context.Context, subscriptionID string) (*SubscriptionSnapshot, error) {
	id := strings.TrimSpace(subscriptionID)
	if id == "" {
		return nil, errors.New("subscription id is required")
	}
	if c.APIKey == "" {
		return nil, errors.New("STRIPE_API_KEY is not configured")
	}

	u, err := url.Parse(strings.TrimRight(c.APIBaseURL, "/") + "/subscriptions/" + url.PathEscape(id))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: subscription fetch status=%d", ErrProcessorUnavailable, resp.StatusCode)
		}
		return nil, fmt.Errorf("subscription fetch failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	type rawSubscription struct {
		ID               string            `json:"id"`
		Customer         string            `json:"customer"`
		Status           string            `json:"status"`
		CurrentPeriodEnd int64             `json:"current_period_end"`
		Metadata         map[string]string `json:"metadata"`
		Items            struct {
			Data []struct {
				Price struct {
					ID string `json:"id"`
				} `json:"price"`
			} `json:"data"`
		} `json:"items"`
	}

	var raw rawSubscription
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.ID) == "" {
		return nil, errors.New("subscription response missing id")
	}

	snap := &SubscriptionSnapshot{
		ID:       strings.TrimSpace(raw.ID),
		Customer: strings.TrimSpace(raw.Customer),
		Status:   strings.ToLower(strings.TrimSpace(raw.Status)),
		Metadata: raw.Metadata,
	}
	if len(raw.Items.Data) > 0 {
		snap.PriceID = strings.TrimSpace(raw.Items.Data[0].Price.ID)
	}
	if raw.CurrentPeriodEnd > 0 {
		t := time.Unix(raw.CurrentPeriodEnd, 0)
		snap.CurrentPeriodEnd = &t
	}
	return snap, nil
}
