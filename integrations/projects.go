package integrations

import (
	"context"
	"fmt"

	"github.com/chxlky/github-project-sync/internal/models"
	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"
)

const (
	// StatusFieldName is the single-select field holding workflow state.
	StatusFieldName = "Status"

	// fieldsPageSize bounds the field list fetch. Boards with more fields
	// than this may not have their Status field found.
	fieldsPageSize = 20
)

type addItemMutation struct {
	AddProjectV2ItemByID *struct {
		Item *struct {
			ID string
		}
	} `graphql:"addProjectV2ItemById(input: $input)"`
}

type singleSelectField struct {
	ID      string
	Name    string
	Options []struct {
		ID   string
		Name string
	}
}

type projectFieldsQuery struct {
	Node *struct {
		ProjectV2 struct {
			Fields *struct {
				Nodes []*struct {
					SingleSelect singleSelectField `graphql:"... on ProjectV2SingleSelectField"`
				}
			} `graphql:"fields(first: $first)"`
		} `graphql:"... on ProjectV2"`
	} `graphql:"node(id: $projectId)"`
}

type updateFieldMutation struct {
	UpdateProjectV2ItemFieldValue *struct {
		ProjectV2Item *struct {
			ID string
		} `graphql:"projectV2Item"`
	} `graphql:"updateProjectV2ItemFieldValue(input: $input)"`
}

// graphQLError wraps a githubv4 failure. githubv4 returns the response's
// top-level errors list as an error even when the transport succeeded.
func (c *GitHubClient) graphQLError(op string, err error) error {
	c.logger.Error("GraphQL request failed", zap.String("op", op), zap.Error(err))
	return &models.UpstreamError{Op: op, Err: err}
}

// AddItem attaches the content node to the project and returns the project
// item id. GitHub returns the existing item when the content is already on
// the board.
func (c *GitHubClient) AddItem(ctx context.Context, projectID, contentID string) (string, error) {
	const op = "add project item"

	var m addItemMutation
	input := githubv4.AddProjectV2ItemByIdInput{
		ProjectID: githubv4.ID(projectID),
		ContentID: githubv4.ID(contentID),
	}
	if err := c.gql.Mutate(ctx, &m, input, nil); err != nil {
		return "", c.graphQLError(op, err)
	}

	if m.AddProjectV2ItemByID == nil || m.AddProjectV2ItemByID.Item == nil || m.AddProjectV2ItemByID.Item.ID == "" {
		c.logger.Error("No item ID in response", zap.String("contentID", contentID))
		return "", &models.UpstreamError{Op: op, Messages: []string{"response has no item id"}}
	}

	itemID := m.AddProjectV2ItemByID.Item.ID
	c.logger.Info("Item added to project", zap.String("itemID", itemID))
	return itemID, nil
}

// StatusField fetches the project's Status field and its options. It is
// never cached: the board can be edited between deliveries.
func (c *GitHubClient) StatusField(ctx context.Context, projectID string) (models.StatusField, error) {
	const op = "fetch project fields"

	var q projectFieldsQuery
	err := c.gql.Query(ctx, &q, map[string]any{
		"projectId": githubv4.ID(projectID),
		"first":     githubv4.Int(fieldsPageSize),
	})
	if err != nil {
		return models.StatusField{}, c.graphQLError(op, err)
	}

	if q.Node == nil || q.Node.ProjectV2.Fields == nil {
		c.logger.Error("No fields found", zap.String("projectID", projectID))
		return models.StatusField{}, &models.UpstreamError{Op: op, Messages: []string{"project has no fields"}}
	}

	for _, n := range q.Node.ProjectV2.Fields.Nodes {
		if n == nil || n.SingleSelect.Name != StatusFieldName {
			continue
		}
		field := models.StatusField{ID: n.SingleSelect.ID, Options: make(map[string]string, len(n.SingleSelect.Options))}
		for _, opt := range n.SingleSelect.Options {
			// First option wins if GitHub ever returns duplicate labels.
			if _, seen := field.Options[opt.Name]; !seen {
				field.Options[opt.Name] = opt.ID
			}
		}
		return field, nil
	}

	c.logger.Error("Status field not found", zap.String("projectID", projectID))
	return models.StatusField{}, &models.UpstreamError{
		Op:  op,
		Err: fmt.Errorf("%w: no %q field", models.ErrSchemaMismatch, StatusFieldName),
	}
}

// SetStatus moves the project item to the option labelled status.
func (c *GitHubClient) SetStatus(ctx context.Context, projectID, itemID string, status models.Status) error {
	const op = "update item status"

	field, err := c.StatusField(ctx, projectID)
	if err != nil {
		return err
	}

	optionID, ok := field.OptionID(status)
	if !ok {
		c.logger.Error("Status option not found", zap.String("status", string(status)))
		return &models.UpstreamError{
			Op:  op,
			Err: fmt.Errorf("%w: no %q option on %s field", models.ErrSchemaMismatch, status, StatusFieldName),
		}
	}

	var m updateFieldMutation
	input := githubv4.UpdateProjectV2ItemFieldValueInput{
		ProjectID: githubv4.ID(projectID),
		ItemID:    githubv4.ID(itemID),
		FieldID:   githubv4.ID(field.ID),
		Value: githubv4.ProjectV2FieldValue{
			SingleSelectOptionID: githubv4.NewString(githubv4.String(optionID)),
		},
	}
	if err := c.gql.Mutate(ctx, &m, input, nil); err != nil {
		return c.graphQLError(op, err)
	}
	if m.UpdateProjectV2ItemFieldValue == nil || m.UpdateProjectV2ItemFieldValue.ProjectV2Item == nil {
		c.logger.Error("No item in status update response", zap.String("itemID", itemID))
		return &models.UpstreamError{Op: op, Messages: []string{"response has no project item"}}
	}

	c.logger.Info("Status updated", zap.String("itemID", itemID), zap.String("status", string(status)))
	return nil
}
