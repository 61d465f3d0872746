package integrations

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/chxlky/github-project-sync/internal/models"
	"github.com/google/go-github/v66/github"
	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const DefaultUserAgent = "github-project-sync"

// GitHubClient talks to the GitHub REST and GraphQL APIs. It is safe for
// concurrent use; both API clients share one pooled http.Client.
type GitHubClient struct {
	rest   *github.Client
	gql    *githubv4.Client
	logger *zap.Logger
}

// userAgentTransport stamps every outbound request, including GraphQL ones
// which githubv4 sends without a User-Agent of its own.
type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(req)
}

// NewGitHubClient returns a client authenticating every request with token
// as a bearer credential. An empty baseURL keeps the public api.github.com.
func NewGitHubClient(ctx context.Context, token, baseURL, userAgent string, logger *zap.Logger) (*GitHubClient, error) {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	base := &http.Client{Transport: userAgentTransport{agent: userAgent, base: http.DefaultTransport}}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))

	rest := github.NewClient(httpClient)
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid github api url %q: %w", baseURL, err)
		}
		rest.BaseURL = u
	}
	rest.UserAgent = userAgent

	gqlURL := rest.BaseURL.ResolveReference(&url.URL{Path: "graphql"})

	if logger == nil {
		logger = zap.NewNop()
	}

	return &GitHubClient{
		rest:   rest,
		gql:    githubv4.NewEnterpriseClient(gqlURL.String(), httpClient),
		logger: logger,
	}, nil
}

// resourceRef locates an issue or pull request in the REST API.
type resourceRef struct {
	Owner  string
	Repo   string
	Pull   bool
	Number int
}

// parseResourceURL reads owner, repo, kind and number from a web URL such as
// https://github.com/owner/repo/issues/1 or https://github.com/owner/repo/pull/2.
func parseResourceURL(htmlURL string) (resourceRef, error) {
	u, err := url.Parse(htmlURL)
	if err != nil {
		return resourceRef{}, err
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 4 {
		return resourceRef{}, fmt.Errorf("unexpected resource path %q", u.Path)
	}

	ref := resourceRef{Owner: parts[0], Repo: parts[1]}
	switch parts[2] {
	case "issues":
	case "pull", "pulls":
		ref.Pull = true
	default:
		return resourceRef{}, fmt.Errorf("unexpected resource kind %q", parts[2])
	}

	ref.Number, err = strconv.Atoi(parts[3])
	if err != nil || ref.Number <= 0 {
		return resourceRef{}, fmt.Errorf("invalid resource number %q", parts[3])
	}
	return ref, nil
}

// ResolveNodeID looks up the GraphQL node id of the issue or pull request at
// htmlURL. Pull requests are fetched from the pulls endpoint, issues from
// the issues endpoint.
func (c *GitHubClient) ResolveNodeID(ctx context.Context, htmlURL string) (string, error) {
	const op = "resolve node id"

	ref, err := parseResourceURL(htmlURL)
	if err != nil {
		c.logger.Error("Cannot derive API endpoint from resource URL", zap.String("url", htmlURL), zap.Error(err))
		return "", &models.UpstreamError{Op: op, Err: err}
	}

	var (
		nodeID string
		resp   *github.Response
	)
	if ref.Pull {
		var pr *github.PullRequest
		pr, resp, err = c.rest.PullRequests.Get(ctx, ref.Owner, ref.Repo, ref.Number)
		nodeID = pr.GetNodeID()
	} else {
		var issue *github.Issue
		issue, resp, err = c.rest.Issues.Get(ctx, ref.Owner, ref.Repo, ref.Number)
		nodeID = issue.GetNodeID()
	}
	if err != nil {
		c.logger.Error("REST API request failed", zap.String("url", htmlURL), zap.Error(err))
		return "", upstreamError(op, resp, err)
	}
	if nodeID == "" {
		c.logger.Error("No node_id in response", zap.String("url", htmlURL), zap.Int("status", resp.StatusCode))
		return "", &models.UpstreamError{Op: op, StatusCode: resp.StatusCode, Messages: []string{"response has no node_id"}}
	}

	return nodeID, nil
}

func upstreamError(op string, resp *github.Response, err error) error {
	e := &models.UpstreamError{Op: op, Err: err}
	if resp != nil && resp.Response != nil {
		e.StatusCode = resp.StatusCode
	}
	return e
}
