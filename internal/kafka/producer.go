package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Producer struct {
	w       *kafka.Writer
	log     *zap.Logger
	inbox   chan kafka.Message
	closeCh chan struct{}
}

func NewProducer(brokers []string, topic string, buf int, log *zap.Logger) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        true, // fire-and-forget; errors surface in the loop
		},
		log:     log,
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

// Start runs the drain loop. The loop exits after Close(), once every queued
// message has been handed to the writer.
func (p *Producer) Start() {
	go func() {
		for m := range p.inbox {
			if err := p.w.WriteMessages(context.Background(), m); err != nil {
				p.log.Error("kafka write", zap.String("topic", p.w.Topic), zap.Error(err))
			}
		}
		_ = p.w.Close()
		close(p.closeCh)
	}()
}

func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) {
	p.inbox <- kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
}

// Close the inbox so the loop flushes remaining messages and exits.
// Callers must stop publishing before closing.
func (p *Producer) Close() { close(p.inbox) }

// WaitClosed blocks until the loop has drained and the writer is closed.
func (p *Producer) WaitClosed() { <-p.closeCh }
