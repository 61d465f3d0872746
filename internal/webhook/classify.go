package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/chxlky/github-project-sync/internal/models"
	"github.com/google/go-github/v66/github"
)

const (
	EventIssues      = "issues"
	EventPullRequest = "pull_request"

	ReasonRepoNotTracked    = "repo not tracked"
	ReasonUnsupportedEvent  = "unsupported event type"
	ReasonUnsupportedAction = "unsupported action"
	ReasonNotMerged         = "pull request closed without merge"
)

// envelope holds the fields shared by every event type.
type envelope struct {
	Action     *string `json:"action"`
	Repository *struct {
		Name string `json:"name"`
	} `json:"repository"`
}

// Classifier turns raw deliveries into decisions. The allow-list is fixed at
// construction.
type Classifier struct {
	allowed map[string]struct{}
}

func NewClassifier(repos []string) *Classifier {
	allowed := make(map[string]struct{}, len(repos))
	for _, r := range repos {
		allowed[r] = struct{}{}
	}
	return &Classifier{allowed: allowed}
}

// Tracked reports whether repo is on the allow-list.
func (c *Classifier) Tracked(repo string) bool {
	_, ok := c.allowed[repo]
	return ok
}

// Classify decodes body according to eventType and decides which status, if
// any, the referenced issue or pull request should move to. Decoding failures
// and missing sub-objects return an error wrapping models.ErrMalformedPayload.
func (c *Classifier) Classify(eventType string, body []byte) (models.Decision, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return models.Decision{}, fmt.Errorf("%w: %v", models.ErrMalformedPayload, err)
	}
	if env.Action == nil {
		return models.Decision{}, fmt.Errorf("%w: payload without action", models.ErrMalformedPayload)
	}
	action := *env.Action

	repo := ""
	if env.Repository != nil {
		repo = env.Repository.Name
	}
	if !c.Tracked(repo) {
		return ignore(models.Unrecognized{EventType: eventType, Action: action, Repo: repo}, ReasonRepoNotTracked), nil
	}

	switch eventType {
	case EventIssues:
		return classifyIssue(repo, body)
	case EventPullRequest:
		return classifyPullRequest(repo, body)
	default:
		return ignore(models.Unrecognized{EventType: eventType, Action: action, Repo: repo}, ReasonUnsupportedEvent), nil
	}
}

func classifyIssue(repo string, body []byte) (models.Decision, error) {
	var payload github.IssuesEvent
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.Decision{}, fmt.Errorf("%w: %v", models.ErrMalformedPayload, err)
	}
	if payload.Issue == nil || payload.Issue.GetHTMLURL() == "" {
		return models.Decision{}, fmt.Errorf("%w: issues event without issue", models.ErrMalformedPayload)
	}

	ev := models.IssueEvent{
		Action: payload.GetAction(),
		Resource: models.Resource{
			URL:    payload.Issue.GetHTMLURL(),
			Number: payload.Issue.GetNumber(),
			Title:  payload.Issue.GetTitle(),
			Repo:   repo,
		},
	}

	switch ev.Action {
	case "opened":
		return models.Decision{Event: ev, Target: models.StatusTodo}, nil
	case "closed":
		return models.Decision{Event: ev, Target: models.StatusDone}, nil
	default:
		return ignore(ev, ReasonUnsupportedAction), nil
	}
}

func classifyPullRequest(repo string, body []byte) (models.Decision, error) {
	var payload github.PullRequestEvent
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.Decision{}, fmt.Errorf("%w: %v", models.ErrMalformedPayload, err)
	}
	pr := payload.PullRequest
	if pr == nil || pr.GetHTMLURL() == "" {
		return models.Decision{}, fmt.Errorf("%w: pull_request event without pull_request", models.ErrMalformedPayload)
	}

	ev := models.PullRequestEvent{
		Action: payload.GetAction(),
		Resource: models.Resource{
			URL:    pr.GetHTMLURL(),
			Number: pr.GetNumber(),
			Title:  pr.GetTitle(),
			Repo:   repo,
		},
		Merged: pr.Merged,
	}

	switch ev.Action {
	case "opened":
		return models.Decision{Event: ev, Target: models.StatusTodo}, nil
	case "closed":
		// Abandoned pull requests stay where they are.
		if ev.Merged == nil || !*ev.Merged {
			return ignore(ev, ReasonNotMerged), nil
		}
		return models.Decision{Event: ev, Target: models.StatusDone}, nil
	default:
		return ignore(ev, ReasonUnsupportedAction), nil
	}
}

func ignore(ev models.Event, reason string) models.Decision {
	return models.Decision{Event: ev, Reason: reason}
}
