package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voxgate-labs/voxgate-ai/src/logger"
)

// RestClient places and controls calls through the Twilio REST API.
type RestClient struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// RestConfig configures the REST client.
type RestConfig struct {
	AccountSID string
	AuthToken  string
	BaseURL    string // override for tests
}

// NewRestClient creates a Twilio REST client.
func NewRestClient(cfg RestConfig) (*RestClient, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("twilio account SID and auth token are required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.twilio.com/2010-04-01"
	}
	return &RestClient{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        logger.WithPrefix("TwilioREST"),
	}, nil
}

// Call is the provider's view of a placed call.
type Call struct {
	SID       string `json:"sid"`
	To        string `json:"to"`
	From      string `json:"from"`
	Status    string `json:"status"`
	Direction string `json:"direction"`
}

// Terminal call statuses delivered on status callbacks.
var TerminalStatuses = map[string]bool{
	"completed": true,
	"busy":      true,
	"failed":    true,
	"no-answer": true,
	"canceled":  true,
}

// DialParams are the parameters for placing an outbound call.
type DialParams struct {
	To             string
	From           string
	AnswerURL      string // fetched when the callee picks up
	StatusCallback string
	Timeout        int // ring timeout in seconds
}

// Dial places an outbound call.
func (c *RestClient) Dial(ctx context.Context, params DialParams) (*Call, error) {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", c.baseURL, c.accountSID)

	form := url.Values{}
	form.Set("To", params.To)
	form.Set("From", params.From)
	form.Set("Url", params.AnswerURL)
	if params.StatusCallback != "" {
		form.Set("StatusCallback", params.StatusCallback)
		for _, ev := range []string{"initiated", "ringing", "answered", "completed"} {
			form.Add("StatusCallbackEvent", ev)
		}
	}
	if params.Timeout > 0 {
		form.Set("Timeout", fmt.Sprintf("%d", params.Timeout))
	}

	var call Call
	if err := c.post(ctx, endpoint, form, &call); err != nil {
		return nil, err
	}
	c.log.Info("Placed call %s to %s", call.SID, call.To)
	return &call, nil
}

// Hangup ends an in-progress call.
func (c *RestClient) Hangup(ctx context.Context, callSID string) error {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", c.baseURL, c.accountSID, callSID)
	form := url.Values{}
	form.Set("Status", "completed")
	return c.post(ctx, endpoint, form, nil)
}

// Redirect points an in-progress call at a new answer document, used for
// agent transfer.
func (c *RestClient) Redirect(ctx context.Context, callSID, answerURL string) error {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", c.baseURL, c.accountSID, callSID)
	form := url.Values{}
	form.Set("Url", answerURL)
	return c.post(ctx, endpoint, form, nil)
}

// RestError is a Twilio API error body.
type RestError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func (e *RestError) Error() string {
	return fmt.Sprintf("twilio error %d: %s", e.Code, e.Message)
}

func (c *RestClient) post(ctx context.Context, endpoint string, form url.Values, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var apiErr RestError
		if err := json.Unmarshal(body, &apiErr); err != nil {
			return fmt.Errorf("twilio error: %s", string(body))
		}
		return &apiErr
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("parsing twilio response: %w", err)
		}
	}
	return nil
}
