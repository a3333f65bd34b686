package pubsub

import (
	"context"
	"testing"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomline/erp-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	tests := []struct {
		name    string
		project string
		input   string
		want    string
	}{
		{name: "bare id", project: "proj", input: "loomline-production-events", want: "projects/proj/topics/loomline-production-events"},
		{name: "trimmed", project: "proj", input: "  q  ", want: "projects/proj/topics/q"},
		{name: "full name passes", project: "other", input: "projects/proj/topics/q", want: "projects/proj/topics/q"},
		{name: "empty", project: "proj", input: " ", want: ""},
		{name: "missing project", project: "", input: "q", want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, resourceName(tc.project, "topics", tc.input))
		})
	}
}

func TestTopicNamesSkipsBlank(t *testing.T) {
	names := topicNames(config.PubSubConfig{ProductionTopic: "prod", QualityTopic: " "})
	assert.Equal(t, []string{"prod"}, names)
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("x"))
	assert.NoError(t, c.Close())
	assert.Error(t, c.Ping(context.Background()))
}

type missingTopics struct{ asked []string }

func (m *missingTopics) Publisher(name string) *pubsub.Publisher {
	m.asked = append(m.asked, name)
	return nil
}

func TestPublishersSkipUnresolvedTopics(t *testing.T) {
	source := &missingTopics{}
	pubs := NewPublishers(source)

	assert.Nil(t, pubs.For("loomline-production-events"))
	assert.Nil(t, pubs.For("loomline-production-events"))
	assert.Equal(t, []string{"loomline-production-events", "loomline-production-events"}, source.asked)

	pubs.Stop()
	assert.Nil(t, NewPublishers(nil).For("any"))
}
