package models

// Status is a human-readable option label on the project's Status field.
type Status string

const (
	StatusTodo Status = "Todo"
	StatusDone Status = "Done"
)

// Resource is the issue or pull request a delivery refers to.
type Resource struct {
	URL    string
	Number int
	Title  string
	Repo   string
}

// Event is the typed form of a webhook payload. The concrete type is one of
// IssueEvent, PullRequestEvent or Unrecognized.
type Event interface {
	isEvent()
}

type IssueEvent struct {
	Action   string
	Resource Resource
}

type PullRequestEvent struct {
	Action   string
	Resource Resource
	// Merged is nil when the payload did not say.
	Merged *bool
}

// Unrecognized covers event types this service does not act on.
type Unrecognized struct {
	EventType string
	Action    string
	Repo      string
}

func (IssueEvent) isEvent()       {}
func (PullRequestEvent) isEvent() {}
func (Unrecognized) isEvent()     {}

// Decision is the result of classifying a delivery. Target is empty when the
// delivery is out of scope, in which case Reason says why.
type Decision struct {
	Event  Event
	Target Status
	Reason string
}

func (d Decision) Ignored() bool {
	return d.Target == ""
}

// Resource returns the issue or pull request the decision applies to.
func (d Decision) Resource() (Resource, bool) {
	switch ev := d.Event.(type) {
	case IssueEvent:
		return ev.Resource, true
	case PullRequestEvent:
		return ev.Resource, true
	default:
		return Resource{}, false
	}
}

func (d Decision) Action() string {
	switch ev := d.Event.(type) {
	case IssueEvent:
		return ev.Action
	case PullRequestEvent:
		return ev.Action
	case Unrecognized:
		return ev.Action
	default:
		return ""
	}
}

// Repo returns the repository name the delivery came from, tracked or not.
func (d Decision) Repo() string {
	if ev, ok := d.Event.(Unrecognized); ok {
		return ev.Repo
	}
	res, _ := d.Resource()
	return res.Repo
}

// Outcome is what one webhook processing pass did.
type Outcome struct {
	Applied bool
	Reason  string
	ItemID  string
	Status  Status
}

func Ignored(reason string) Outcome {
	return Outcome{Reason: reason}
}

func Applied(itemID string, status Status) Outcome {
	return Outcome{Applied: true, ItemID: itemID, Status: status}
}
