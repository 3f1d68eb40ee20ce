// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package dispatcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"github.com/cardinalhq/cmdqueue/internal/commandqueue"
)

// Header keys on every forwarded command.
const (
	HeaderEntryID     = "cmdqueue-id"
	HeaderCommandType = "cmdqueue-command-type"
	HeaderIdentity    = "cmdqueue-identity"
	HeaderCreated     = "cmdqueue-created"
	HeaderDispatchID  = "cmdqueue-dispatch-id"
)

// MessageWriter is the part of *kafka.Writer the handler needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaHandler forwards a claimed command to a Kafka topic. The message key
// is the entry id so every attempt for one entry lands on one partition.
type KafkaHandler struct {
	writer MessageWriter
}

func NewKafkaHandler(w MessageWriter) *KafkaHandler {
	return &KafkaHandler{writer: w}
}

func (h *KafkaHandler) Handle(ctx context.Context, entry commandqueue.Entry) error {
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(entry.ID(), 10)),
		Value: []byte(entry.Payload()),
		Time:  entry.Created(),
		Headers: []kafka.Header{
			{Key: HeaderEntryID, Value: []byte(strconv.FormatInt(entry.ID(), 10))},
			{Key: HeaderCommandType, Value: []byte(strconv.FormatInt(int64(entry.CommandType()), 10))},
			{Key: HeaderIdentity, Value: []byte(strconv.FormatInt(int64(entry.Identity()), 10))},
			{Key: HeaderCreated, Value: []byte(entry.Created().Format(time.RFC3339Nano))},
			{Key: HeaderDispatchID, Value: []byte(uuid.NewString())},
		},
	}
	if err := h.writer.WriteMessages(ctx, msg); err != nil {
		err = fmt.Errorf("failed to forward command %d to kafka: %w", entry.ID(), err)
		if temporaryKafkaError(err) {
			return Retryable(err)
		}
		return err
	}
	return nil
}

func (h *KafkaHandler) Close() error {
	return h.writer.Close()
}

func temporaryKafkaError(err error) bool {
	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) {
		for _, e := range writeErrs {
			if e != nil && !temporaryKafkaError(e) {
				return false
			}
		}
		return true
	}
	var kerr kafka.Error
	if errors.As(err, &kerr) {
		return kerr.Temporary()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// NewKafkaWriter builds the writer for cfg.Topic with the configured
// authentication and compression.
func NewKafkaWriter(cfg KafkaConfig) (*kafka.Writer, error) {
	if !cfg.Enabled() {
		return nil, errors.New("kafka brokers and topic are required")
	}
	compression, err := kafkaCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	transport := &kafka.Transport{}
	if cfg.SASLMechanism != "" {
		mechanism, err := saslMechanism(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create SASL mechanism: %w", err)
		}
		transport.SASL = mechanism
	}
	if cfg.TLSEnabled {
		transport.TLS = &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		}
	}

	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    1,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireAll,
		Compression:  compression,
		Transport:    transport,
	}, nil
}

func kafkaCompression(name string) (kafka.Compression, error) {
	switch strings.ToLower(name) {
	case "", "none", "uncompressed":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	default:
		return 0, fmt.Errorf("unsupported kafka compression: %s", name)
	}
}

func saslMechanism(cfg KafkaConfig) (sasl.Mechanism, error) {
	switch cfg.SASLMechanism {
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, cfg.SASLUsername, cfg.SASLPassword)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, cfg.SASLUsername, cfg.SASLPassword)
	case "PLAIN":
		return plain.Mechanism{
			Username: cfg.SASLUsername,
			Password: cfg.SASLPassword,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism: %s", cfg.SASLMechanism)
	}
}
