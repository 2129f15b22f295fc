//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"policydesk/internal/audit"
	"policydesk/pkg/testutil/containers"
)

type KafkaSinkSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
}

func TestKafkaSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSinkSuite))
}

func (s *KafkaSinkSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
}

func (s *KafkaSinkSuite) TestProducesToTopic() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	const topic = "policy-activity-test"

	client, err := audit.NewKafkaClient(s.redpanda.Brokers, topic)
	s.Require().NoError(err)
	defer client.Close()
	s.Require().NoError(audit.EnsureTopic(ctx, client, topic, 1))
	s.Require().NoError(audit.EnsureTopic(ctx, client, topic, 1))

	sink := audit.NewKafkaSink(client, topic, nil)
	s.Require().NoError(sink.Append(ctx, audit.Event{ID: "evt-1", Action: audit.ActionPolicyCreated, PolicyID: 9}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().Empty(fetches.Errors())
	records := fetches.Records()
	s.Require().NotEmpty(records)

	var got audit.Event
	s.Require().NoError(json.Unmarshal(records[0].Value, &got))
	s.Equal("evt-1", got.ID)
	s.Equal(int64(9), got.PolicyID)
	s.Equal("9", string(records[0].Key))
}
