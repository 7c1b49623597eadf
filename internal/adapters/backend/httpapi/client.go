// Package httpapi is the JSON/HTTP client for the workflow backend. It
// implements ports.WorkflowBackend; the event stream lives in the sse
// package, everything request/response shaped lives here.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mvetter/stewardflow/internal/domain"
	"github.com/mvetter/stewardflow/internal/ports"
)

const defaultTimeout = 30 * time.Second

type Client struct {
	baseURL string
	client  *http.Client
}

var _ ports.WorkflowBackend = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.client = client }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) StartSession(ctx context.Context, studyName string, studyContext map[string]any) (domain.SessionSnapshot, error) {
	var resp sessionSchema
	err := c.do(ctx, http.MethodPost, "/api/onboarding/sessions", startSessionSchema{
		StudyName:    studyName,
		StudyContext: studyContext,
	}, &resp)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	return resp.toDomain(), nil
}

func (c *Client) GetSession(ctx context.Context, id domain.SessionID) (domain.SessionSnapshot, error) {
	return c.sessionOp(ctx, http.MethodGet, string(id), "")
}

func (c *Client) RunDiscovery(ctx context.Context, id domain.SessionID) (domain.SessionSnapshot, error) {
	return c.sessionOp(ctx, http.MethodPost, string(id), "discovery")
}

func (c *Client) GenerateRecommendations(ctx context.Context, id domain.SessionID) (domain.SessionSnapshot, error) {
	return c.sessionOp(ctx, http.MethodPost, string(id), "recommendations")
}

func (c *Client) AcceptRecommendations(ctx context.Context, id domain.SessionID) (domain.SessionSnapshot, error) {
	return c.sessionOp(ctx, http.MethodPost, string(id), "recommendations/accept")
}

func (c *Client) RunDeepResearch(ctx context.Context, id domain.SessionID) (domain.SessionSnapshot, error) {
	return c.sessionOp(ctx, http.MethodPost, string(id), "deep-research")
}

func (c *Client) CompleteSession(ctx context.Context, id domain.SessionID) (domain.SessionSnapshot, error) {
	return c.sessionOp(ctx, http.MethodPost, string(id), "complete")
}

func (c *Client) CancelSession(ctx context.Context, id domain.SessionID) (domain.SessionSnapshot, error) {
	return c.sessionOp(ctx, http.MethodPost, string(id), "cancel")
}

func (c *Client) ResumeSession(ctx context.Context, id domain.SessionID) (domain.SessionSnapshot, error) {
	return c.sessionOp(ctx, http.MethodPost, string(id), "resume")
}

func (c *Client) sessionOp(ctx context.Context, method, id, op string) (domain.SessionSnapshot, error) {
	path := "/api/onboarding/sessions/" + id
	if op != "" {
		path += "/" + op
	}

	var resp sessionSchema
	if err := c.do(ctx, method, path, nil, &resp); err != nil {
		return domain.SessionSnapshot{}, err
	}
	return resp.toDomain(), nil
}

func (c *Client) ListApprovals(ctx context.Context, id domain.SessionID) ([]domain.SourceApproval, domain.ApprovalSummary, error) {
	var resp approvalsSchema
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/onboarding/sessions/%s/approvals", id), nil, &resp); err != nil {
		return nil, domain.ApprovalSummary{}, err
	}

	approvals := make([]domain.SourceApproval, 0, len(resp.Approvals))
	for _, a := range resp.Approvals {
		approvals = append(approvals, a.toDomain())
	}
	return approvals, resp.Summary.toDomain(), nil
}

func (c *Client) UpdateApproval(ctx context.Context, id domain.SessionID, key domain.SourceKey, status domain.ApprovalStatus, reason string, settings map[string]any) (domain.ApprovalSummary, error) {
	var resp struct {
		Summary summarySchema `json:"summary"`
	}
	err := c.do(ctx, http.MethodPut,
		fmt.Sprintf("/api/onboarding/sessions/%s/approvals/%s/%s", id, key.SourceType, key.SourceID),
		updateApprovalSchema{Status: string(status), Reason: reason, Settings: settings}, &resp)
	if err != nil {
		return domain.ApprovalSummary{}, err
	}
	return resp.Summary.toDomain(), nil
}

func (c *Client) FinalizeApprovals(ctx context.Context, id domain.SessionID) (domain.SessionSnapshot, domain.ApprovalSummary, error) {
	var resp struct {
		Session sessionSchema `json:"session"`
		Summary summarySchema `json:"summary"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/onboarding/sessions/%s/approvals/finalize", id), nil, &resp)
	if err != nil {
		return domain.SessionSnapshot{}, domain.ApprovalSummary{}, err
	}
	return resp.Session.toDomain(), resp.Summary.toDomain(), nil
}

func (c *Client) AuditTrail(ctx context.Context, id domain.SessionID) ([]domain.AuditEntry, error) {
	var resp struct {
		Entries []auditEntrySchema `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/onboarding/sessions/%s/audit", id), nil, &resp); err != nil {
		return nil, err
	}

	entries := make([]domain.AuditEntry, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		entries = append(entries, e.toDomain())
	}
	return entries, nil
}

func (c *Client) SubmitFeedback(ctx context.Context, id domain.SessionID, feedback string, requestReanalysis bool) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/onboarding/sessions/%s/feedback", id), feedbackSchema{
		Feedback:          feedback,
		RequestReanalysis: requestReanalysis,
	}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, url, domain.ErrSessionNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, url, strings.TrimSpace(string(respBody)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}
