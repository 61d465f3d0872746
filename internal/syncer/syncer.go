// Package syncer drives one webhook delivery through signature check,
// classification and the resolve, link and set-status calls against GitHub.
package syncer

import (
	"context"
	"fmt"

	"github.com/chxlky/github-project-sync/internal/models"
	"github.com/chxlky/github-project-sync/internal/webhook"
	"go.uber.org/zap"
)

// Resolver maps an issue or pull request web URL to its node id.
type Resolver interface {
	ResolveNodeID(ctx context.Context, htmlURL string) (string, error)
}

// Linker adds a node to a project, returning the project item id.
type Linker interface {
	AddItem(ctx context.Context, projectID, contentID string) (string, error)
}

// StatusSetter sets a project item's Status field.
type StatusSetter interface {
	SetStatus(ctx context.Context, projectID, itemID string, status models.Status) error
}

// Envelope is one inbound delivery as received.
type Envelope struct {
	Body       []byte
	Signature  string
	EventType  string
	DeliveryID string
}

type Options struct {
	Secret       string
	ProjectID    string
	AllowedRepos []string
}

// Syncer holds only read-only configuration and may process any number of
// deliveries concurrently.
type Syncer struct {
	secret     string
	projectID  string
	classifier *webhook.Classifier
	resolver   Resolver
	linker     Linker
	status     StatusSetter
	logger     *zap.Logger
}

func New(opts Options, resolver Resolver, linker Linker, status StatusSetter, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		secret:     opts.Secret,
		projectID:  opts.ProjectID,
		classifier: webhook.NewClassifier(opts.AllowedRepos),
		resolver:   resolver,
		linker:     linker,
		status:     status,
		logger:     logger,
	}
}

// Process verifies, classifies and applies a delivery. Errors wrap one of
// models.ErrUnauthorized, models.ErrMalformedPayload or models.ErrUpstream.
func (s *Syncer) Process(ctx context.Context, env Envelope) (models.Outcome, error) {
	logger := s.logger.With(zap.String("delivery", env.DeliveryID))

	if !webhook.Verify(s.secret, env.Body, env.Signature) {
		logger.Warn("Invalid webhook signature")
		return models.Outcome{}, models.ErrUnauthorized
	}

	eventType := env.EventType
	if eventType == "" {
		eventType = "unknown"
	}

	decision, err := s.classifier.Classify(eventType, env.Body)
	if err != nil {
		logger.Error("Failed to parse payload", zap.String("event", eventType), zap.Error(err))
		return models.Outcome{}, err
	}

	if decision.Ignored() {
		logger.Info("Ignoring webhook",
			zap.String("event", eventType),
			zap.String("action", decision.Action()),
			zap.String("repo", decision.Repo()),
			zap.String("reason", decision.Reason),
		)
		return models.Ignored(decision.Reason), nil
	}

	return s.apply(ctx, logger.With(zap.String("event", eventType)), decision)
}

// apply runs resolve, link and set-status in order. A failure after the item
// was linked leaves it on the board without a status; the next delivery for
// the same resource corrects it.
func (s *Syncer) apply(ctx context.Context, logger *zap.Logger, decision models.Decision) (models.Outcome, error) {
	res, ok := decision.Resource()
	if !ok {
		return models.Outcome{}, fmt.Errorf("%w: decision without resource", models.ErrMalformedPayload)
	}

	logger = logger.With(
		zap.String("action", decision.Action()),
		zap.String("repo", res.Repo),
		zap.Int("number", res.Number),
		zap.String("title", res.Title),
		zap.String("target", string(decision.Target)),
	)
	logger.Info("Processing webhook")

	nodeID, err := s.resolver.ResolveNodeID(ctx, res.URL)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("resolve %s: %w", res.URL, err)
	}

	itemID, err := s.linker.AddItem(ctx, s.projectID, nodeID)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("link %s: %w", nodeID, err)
	}

	if err := s.status.SetStatus(ctx, s.projectID, itemID, decision.Target); err != nil {
		logger.Warn("Item linked but status not set", zap.String("itemID", itemID))
		return models.Outcome{}, fmt.Errorf("set status of %s: %w", itemID, err)
	}

	logger.Info("Project item synced", zap.String("itemID", itemID))
	return models.Applied(itemID, decision.Target), nil
}
