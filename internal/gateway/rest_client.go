package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RESTClient talks to the gateway's request/response API. Requests are
// form-encoded with basic auth, matching the provider's REST conventions.
type RESTClient struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	accountSID string
	authToken  string
}

func NewRESTClient(logger *slog.Logger, baseURL, accountSID, authToken string, httpClient *http.Client) *RESTClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &RESTClient{
		logger:     logger.With("component", "gateway_client"),
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
	}
}

// submissionResponse is the gateway's acknowledgement of a send/call request.
type submissionResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"` // error detail on failure responses
}

func (c *RESTClient) SendMessage(ctx context.Context, from, to, body string) (string, error) {
	form := url.Values{}
	form.Set("From", from)
	form.Set("To", to)
	form.Set("Body", body)

	resp, err := c.post(ctx, "/Messages.json", form)
	if err != nil {
		return "", err
	}
	c.logger.InfoContext(ctx, "message submitted to gateway", "to", to, "message_id", resp.SID)
	return resp.SID, nil
}

func (c *RESTClient) PlaceCall(ctx context.Context, req CallRequest) (string, error) {
	form := url.Values{}
	form.Set("From", req.From)
	form.Set("To", req.To)
	form.Set("Url", req.AnswerURL)
	form.Set("Method", http.MethodGet)
	form.Set("StatusCallback", req.StatusCallbackURL)
	if req.MachineDetection {
		form.Set("MachineDetection", "Enable")
	}

	resp, err := c.post(ctx, "/Calls.json", form)
	if err != nil {
		return "", err
	}
	c.logger.InfoContext(ctx, "call submitted to gateway", "to", req.To, "call_id", resp.SID)
	return resp.SID, nil
}

func (c *RESTClient) post(ctx context.Context, path string, form url.Values) (*submissionResponse, error) {
	endpoint := c.baseURL + "/Accounts/" + c.accountSID + path

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(c.accountSID, c.authToken)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response (status %d): %w", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		var errResp submissionResponse
		if jsonErr := json.Unmarshal(respBody, &errResp); jsonErr == nil && errResp.Message != "" {
			return nil, fmt.Errorf("gateway rejected request (status %d): %s", httpResp.StatusCode, errResp.Message)
		}
		return nil, fmt.Errorf("gateway rejected request (status %d)", httpResp.StatusCode)
	}

	var resp submissionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}
	if resp.SID == "" {
		return nil, fmt.Errorf("gateway response missing sid")
	}
	return &resp, nil
}
