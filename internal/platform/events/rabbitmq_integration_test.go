//go:build integration

package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
)

type RabbitMQSuite struct {
	suite.Suite
	container *rabbitmq.RabbitMQContainer
	url       string
	ctx       context.Context
}

func TestRabbitMQSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQSuite))
}

func (s *RabbitMQSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	s.url, err = container.AmqpURL(s.ctx)
	s.Require().NoError(err)
}

func (s *RabbitMQSuite) TearDownSuite() {
	if s.container != nil {
		s.Require().NoError(s.container.Terminate(s.ctx))
	}
}

func (s *RabbitMQSuite) TestPublishDeliversToBoundQueue() {
	pub, err := NewRabbitMQ(RabbitMQConfig{
		URL:        s.url,
		Exchange:   "fhirsync_test",
		RoutingKey: "sync.events",
		QueueName:  "fhirsync_events_test",
	}, zerolog.Nop())
	s.Require().NoError(err)
	defer pub.Close()

	err = pub.Publish(s.ctx, Event{Type: TypeSubjectSynced, SubjectID: "p1", ResourceCount: 5, Timestamp: time.Now().UTC()})
	s.Require().NoError(err)

	conn, err := amqp.Dial(s.url)
	s.Require().NoError(err)
	defer conn.Close()
	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	var msg amqp.Delivery
	s.Eventually(func() bool {
		var ok bool
		msg, ok, err = ch.Get("fhirsync_events_test", true)
		return err == nil && ok
	}, 5*time.Second, 100*time.Millisecond)

	s.Equal(TypeSubjectSynced, msg.Type)
	var got Event
	s.Require().NoError(json.Unmarshal(msg.Body, &got))
	s.Equal("p1", got.SubjectID)
	s.Equal(5, got.ResourceCount)
}
