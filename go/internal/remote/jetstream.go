package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// JetStreamConfig holds connection and stream settings for JetStreamStore.
type JetStreamConfig struct {
	URL             string
	StreamName      string
	SubjectPrefix   string // documents go to <prefix>.<gameId>
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration // how long room history is kept
	Replicas        int
	DuplicateWindow time.Duration
}

// DefaultJetStreamConfig returns defaults for a local NATS server.
func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "ROOM_SNAPSHOTS",
		SubjectPrefix:   "rooms.snapshots",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          30 * 24 * time.Hour,
		Replicas:        1,
		DuplicateWindow: 2 * time.Minute,
	}
}

// JetStreamStore keeps every snapshot as a message on a per-room subject.
// Subscriptions are ordered consumers starting at the last message of the
// room's subject.
type JetStreamStore struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

// NewJetStreamStore connects to NATS and ensures the snapshot stream exists.
func NewJetStreamStore(ctx context.Context, cfg JetStreamConfig) (*JetStreamStore, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", classifyNATS(err))
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	s := &JetStreamStore{nc: nc, js: js, config: cfg}
	if err := s.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return s, nil
}

func (s *JetStreamStore) streamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        s.config.StreamName,
		Description: "Append-only room score snapshots",
		Subjects:    []string{s.config.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      s.config.MaxAge,
		MaxMsgs:     -1,
		Storage:     jetstream.FileStorage,
		Replicas:    s.config.Replicas,
		Duplicates:  s.config.DuplicateWindow,
	}
}

func (s *JetStreamStore) ensureStream(ctx context.Context) error {
	sc := s.streamConfig()

	stream, err := s.js.Stream(ctx, sc.Name)
	if err != nil {
		if _, err = s.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", classifyNATS(err))
		}
		log.Info().Str("stream", sc.Name).Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", classifyNATS(err))
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = s.js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", classifyNATS(err))
		}
		log.Info().Str("stream", sc.Name).Msg("updated JetStream stream")
	}
	return nil
}

func (s *JetStreamStore) subject(gameID string) string {
	return s.config.SubjectPrefix + "." + gameID
}

func (s *JetStreamStore) Create(ctx context.Context, doc Document) (DocumentRef, error) {
	doc.ID = uuid.New().String()
	data, err := json.Marshal(doc)
	if err != nil {
		return DocumentRef{}, fmt.Errorf("marshal document: %w", err)
	}

	subject := s.subject(doc.GameID)
	ack, err := s.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Doc-ID":  []string{doc.ID},
			"Game-ID": []string{doc.GameID},
		},
	},
		jetstream.WithMsgID(doc.ID),
		jetstream.WithExpectStream(s.config.StreamName),
	)
	if err != nil {
		return DocumentRef{}, fmt.Errorf("publish to JetStream: %w", classifyNATS(err))
	}

	log.Debug().
		Str("subject", subject).
		Str("doc_id", doc.ID).
		Uint64("sequence", ack.Sequence).
		Int64("timestamp", doc.Timestamp).
		Msg("snapshot stored")

	return DocumentRef{ID: doc.ID}, nil
}

func (s *JetStreamStore) Subscribe(ctx context.Context, q Query, onChange func(Document)) (Unsubscribe, error) {
	if q.GameID == "" {
		return nil, fmt.Errorf("subscribe: empty game id")
	}

	consumer, err := s.js.OrderedConsumer(ctx, s.config.StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{s.subject(q.GameID)},
		DeliverPolicy:  jetstream.DeliverLastPerSubjectPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create ordered consumer: %w", classifyNATS(err))
	}

	var (
		mu        sync.Mutex
		last      Document
		delivered bool
	)
	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		var doc Document
		if err := json.Unmarshal(msg.Data(), &doc); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to decode snapshot")
			return
		}
		doc.ID = msg.Headers().Get("Doc-ID")

		mu.Lock()
		if !newer(doc, last, delivered) {
			mu.Unlock()
			log.Debug().
				Str("game_id", doc.GameID).
				Int64("timestamp", doc.Timestamp).
				Msg("skipping out-of-order snapshot")
			return
		}
		last, delivered = doc, true
		mu.Unlock()

		onChange(doc)
	})
	if err != nil {
		return nil, fmt.Errorf("start consumer: %w", classifyNATS(err))
	}

	log.Info().Str("game_id", q.GameID).Msg("subscribed to room snapshots")

	var once sync.Once
	return func() {
		once.Do(func() {
			consumeCtx.Stop()
			log.Info().Str("game_id", q.GameID).Msg("unsubscribed from room snapshots")
		})
	}, nil
}

// Conn exposes the NATS connection for health checks.
func (s *JetStreamStore) Conn() *nats.Conn {
	return s.nc
}

// Close drains nothing; in-flight publishes are abandoned.
func (s *JetStreamStore) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}

// classifyNATS maps NATS client errors onto the store's error kinds.
func classifyNATS(err error) error {
	switch {
	case errors.Is(err, nats.ErrPermissionViolation), errors.Is(err, nats.ErrAuthorization):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrNoResponders),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, jetstream.ErrNoStreamResponse),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return err
	}
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgs == b.MaxMsgs &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}
