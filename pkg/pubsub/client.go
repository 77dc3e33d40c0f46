// Package pubsub wraps the Cloud Pub/Sub v2 client with the topic and
// subscription names this deployment uses.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/groceryhub-backend/pkg/config"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
)

var errNotInitialized = errors.New("pubsub client not initialized")

// Client resolves short topic and subscription IDs against the project and
// keeps one publisher per topic for the life of the process.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient connects and checks that every configured topic and subscription
// exists, so a misnamed resource fails at startup instead of on first use.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errors.New("gcp project id is required")
	}
	raw, err := pubsub.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	c := &Client{client: raw, projectID: projectID, cfg: cfg, publishers: map[string]*pubsub.Publisher{}}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "project_id", projectID), "pubsub client initialized")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if gcp.CredentialsJSON != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	}
	if gcp.ApplicationCredentials != "" {
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

type resource struct {
	kind string // "topics" or "subscriptions"
	name string
}

func configuredResources(cfg config.PubSubConfig) []resource {
	var out []resource
	add := func(kind, name string) {
		if strings.TrimSpace(name) != "" {
			out = append(out, resource{kind: kind, name: name})
		}
	}
	add("topics", cfg.OrdersTopic)
	add("topics", cfg.WhatsAppTopic)
	add("subscriptions", cfg.OrdersSubscription)
	add("subscriptions", cfg.WhatsAppSubscription)
	return out
}

// Ping looks up every configured topic and subscription.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	resources := configuredResources(c.cfg)
	if len(resources) == 0 {
		return errors.New("no pubsub topics or subscriptions configured")
	}
	for _, res := range resources {
		full := resourceName(c.projectID, res.kind, res.name)
		var err error
		if res.kind == "topics" {
			_, err = c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: full})
		} else {
			_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: full})
		}
		switch {
		case status.Code(err) == codes.NotFound:
			return fmt.Errorf("%s does not exist", full)
		case err != nil:
			return fmt.Errorf("look up %s: %w", full, err)
		}
	}
	return nil
}

// Subscriber returns a receiver for a subscription ID or full resource name.
func (c *Client) Subscriber(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	full := resourceName(c.projectID, "subscriptions", name)
	if full == "" {
		return nil
	}
	return c.client.Subscriber(full)
}

func (c *Client) OrdersSubscription() *pubsub.Subscriber {
	return c.Subscriber(c.cfg.OrdersSubscription)
}

func (c *Client) WhatsAppSubscription() *pubsub.Subscriber {
	return c.Subscriber(c.cfg.WhatsAppSubscription)
}

// Publish queues msg on topic. The returned result resolves once the server
// acknowledges the message; nil means the topic name was empty.
func (c *Client) Publish(ctx context.Context, topic string, msg *pubsub.Message) *pubsub.PublishResult {
	pub := c.publisher(topic)
	if pub == nil {
		return nil
	}
	return pub.Publish(ctx, msg)
}

func (c *Client) publisher(topic string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := resourceName(c.projectID, "topics", topic)
	if full == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if pub, ok := c.publishers[full]; ok {
		return pub
	}
	pub := c.client.Publisher(full)
	c.publishers[full] = pub
	return pub
}

// Close flushes pending publishes before closing the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for name, pub := range c.publishers {
		pub.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.client.Close()
}

// resourceName expands a short ID into projects/<p>/<kind>/<id>. Names that
// are already fully qualified pass through.
func resourceName(projectID, kind, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/") {
		return name
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return ""
	}
	return "projects/" + projectID + "/" + kind + "/" + name
}
