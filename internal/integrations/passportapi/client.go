package passportapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BearBump/PassportDesk/internal/api/contract"
	"github.com/BearBump/PassportDesk/internal/models"
	"github.com/pkg/errors"
)

// ErrUnconfirmedResult is a 2xx bulk answer whose counts do not account for
// every submitted passport.
var ErrUnconfirmedResult = errors.New("bulk result does not account for every passport")

// HTTPError is a non-2xx answer from the passport API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("passport api http %d", e.StatusCode)
	}
	return fmt.Sprintf("passport api http %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpc: &http.Client{
			Timeout: timeout,
		},
	}
}

// BulkTransition submits one bulk status transition. It never retries.
func (c *Client) BulkTransition(ctx context.Context, batch models.DispatchBatch) (models.BulkResult, error) {
	body := contract.BulkTransitionRequest{
		PassportIDs: batch.UnitIDs,
		ToStatus:    batch.TargetStatus,
		Metadata:    batch.Metadata,
	}
	if body.Metadata == nil {
		body.Metadata = map[string]string{}
	}

	var resp contract.BulkTransitionResponse
	if err := c.do(ctx, http.MethodPost, contract.PathBulkTransition, nil, c.token, body, &resp); err != nil {
		return models.BulkResult{}, err
	}
	if resp.SuccessCount < 0 || resp.FailedCount < 0 || resp.SuccessCount+resp.FailedCount != len(batch.UnitIDs) {
		return models.BulkResult{}, errors.Wrapf(ErrUnconfirmedResult, "success_count=%d failed_count=%d for %d passports",
			resp.SuccessCount, resp.FailedCount, len(batch.UnitIDs))
	}

	out := models.BulkResult{
		SuccessCount: resp.SuccessCount,
		FailedCount:  resp.FailedCount,
	}
	if resp.Results != nil {
		out.Results = make([]models.UnitResult, 0, len(*resp.Results))
		for _, r := range *resp.Results {
			out.Results = append(out.Results, models.UnitResult{
				PassportID: r.PassportID,
				Success:    r.Success,
				Error:      r.Error,
			})
		}
	}
	return out, nil
}

func (c *Client) ActionInfo(ctx context.Context, passportID, token string) (contract.ActionInfoResponse, error) {
	q := url.Values{}
	q.Set("token", token)
	var resp contract.ActionInfoResponse
	err := c.do(ctx, http.MethodGet, passportPath(contract.PathActionInfo, passportID), q, "", nil, &resp)
	return resp, err
}

func (c *Client) Transition(ctx context.Context, passportID, token string, req contract.TransitionRequest) (contract.TransitionResponse, error) {
	var resp contract.TransitionResponse
	err := c.do(ctx, http.MethodPost, passportPath(contract.PathTransition, passportID), nil, token, req, &resp)
	return resp, err
}

func passportPath(pattern, id string) string {
	return strings.Replace(pattern, "{id}", url.PathEscape(id), 1)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, bearer string, in, out any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return errors.Wrap(err, "parse base url")
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e contract.ErrorResponse
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(b, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(b))
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode")
	}
	return nil
}
