// Package pubsub owns the Pub/Sub v2 connection used by the outbox publisher.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/invoice-review/pkg/config"
	"github.com/angelmondragon/invoice-review/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("pubsub topic name is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

type Client struct {
	client    *pubsub.Client
	projectID string
	topics    []string
}

// NewClient connects and fails fast when a configured topic is missing, so a
// misconfigured publisher never starts draining the outbox.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	topics := topicNames(cfg)
	if len(topics) == 0 {
		return nil, errNoTopics
	}
	opts, err := gcp.ClientOptions()
	if err != nil {
		return nil, err
	}
	psClient, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{client: psClient, projectID: projectID, topics: topics}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}
	logg.Info(logg.WithField(ctx, "topics", topics), "pubsub client initialized")
	return c, nil
}

func topicNames(cfg config.PubSubConfig) []string {
	var names []string
	for _, name := range []string{cfg.DocumentsTopic, cfg.ReviewsTopic} {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}

// Publisher returns a handle for a topic ID or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	resource := topicResourceName(c.projectID, name)
	if resource == "" {
		return nil
	}
	return c.client.Publisher(resource)
}

// Ping confirms every configured topic exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	for _, name := range c.topics {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{
			Topic: topicResourceName(c.projectID, name),
		})
		switch {
		case status.Code(err) == codes.NotFound:
			return fmt.Errorf("topic %q does not exist", name)
		case err != nil:
			return fmt.Errorf("checking topic %q: %w", name, err)
		}
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// topicResourceName expands a bare topic ID to projects/<p>/topics/<id>.
// Names that are already fully qualified pass through.
func topicResourceName(projectID, name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/") {
		return name
	}
	projectID = strings.TrimSpace(projectID)
	if name == "" || projectID == "" {
		return ""
	}
	return "projects/" + projectID + "/topics/" + name
}
