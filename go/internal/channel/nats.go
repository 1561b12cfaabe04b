package channel

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

type NATSConfig struct {
	URL               string
	StreamName        string
	SubjectPrefix     string
	MaxReconnects     int
	ReconnectWait     time.Duration
	MaxAge            time.Duration // How long to keep snapshots
	MaxMsgsPerSubject int64         // Snapshots kept per room
	Replicas          int           // Number of replicas for the stream
	DuplicateWindow   time.Duration // Window for duplicate detection
	BufferSize        int           // Per-subscription mailbox size
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:               nats.DefaultURL,
		StreamName:        "ROOM_EVENTS",
		SubjectPrefix:     "rooms.events",
		MaxReconnects:     -1, // Infinite
		ReconnectWait:     2 * time.Second,
		MaxAge:            24 * time.Hour,
		MaxMsgsPerSubject: 16,
		Replicas:          1,
		DuplicateWindow:   2 * time.Minute,
		BufferSize:        DefaultBufferSize,
	}
}

// NATS is a Channel on a JetStream stream with one subject per room.
// Subscribers start from the last snapshot of their room.
type NATS struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config NATSConfig
}

// Connect dials NATS with the reconnect policy from cfg.
func Connect(cfg NATSConfig) (*nats.Conn, error) {
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
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// NewNATS wraps an open connection and makes sure the stream exists
func NewNATS(ctx context.Context, nc *nats.Conn, cfg NATSConfig) (*NATS, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	n := &NATS{nc: nc, js: js, config: cfg}
	if err := n.ensureStream(ctx); err != nil {
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return n, nil
}

func (n *NATS) streamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:              n.config.StreamName,
		Description:       "Room snapshots per room subject",
		Subjects:          []string{fmt.Sprintf("%s.>", n.config.SubjectPrefix)},
		Retention:         jetstream.LimitsPolicy,
		MaxAge:            n.config.MaxAge,
		MaxMsgsPerSubject: n.config.MaxMsgsPerSubject,
		Storage:           jetstream.FileStorage,
		Replicas:          n.config.Replicas,
		Duplicates:        n.config.DuplicateWindow,
	}
}

func (n *NATS) ensureStream(ctx context.Context) error {
	sc := n.streamConfig()

	stream, err := n.js.Stream(ctx, n.config.StreamName)
	if err != nil {
		if _, err = n.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().
			Str("stream", n.config.StreamName).
			Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = n.js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().
			Str("stream", n.config.StreamName).
			Msg("updated JetStream stream")
	}
	return nil
}

func (n *NATS) subject(roomID uuid.UUID) string {
	return fmt.Sprintf("%s.%s", n.config.SubjectPrefix, roomID)
}

// Publish appends snap to its room subject. Re-publishing an unchanged state
// is dropped by the stream's duplicate window.
func (n *NATS) Publish(ctx context.Context, snap models.RoomSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	msgID, err := StateID(snap)
	if err != nil {
		return err
	}

	subject := n.subject(snap.Room.ID)
	ack, err := n.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Room-ID":     []string{snap.Room.ID.String()},
			"Room-Status": []string{string(snap.Room.Status)},
		},
	},
		jetstream.WithMsgID(msgID),
		jetstream.WithExpectStream(n.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("published snapshot")
	return nil
}

// Subscribe opens an ordered consumer on the room subject
func (n *NATS) Subscribe(ctx context.Context, roomID uuid.UUID) (Subscription, error) {
	cons, err := n.js.OrderedConsumer(ctx, n.config.StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{n.subject(roomID)},
		DeliverPolicy:  jetstream.DeliverLastPerSubjectPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create ordered consumer: %w", err)
	}

	sub := &natsSub{box: newMailbox(n.config.BufferSize)}
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		var snap models.RoomSnapshot
		if err := json.Unmarshal(msg.Data(), &snap); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject()).Msg("dropping undecodable snapshot")
			return
		}
		sub.box.offer(snap)
	})
	if err != nil {
		return nil, fmt.Errorf("start consumer: %w", err)
	}
	sub.cc = cc
	return sub, nil
}

// Conn exposes the underlying connection so other core subjects can share it
func (n *NATS) Conn() *nats.Conn {
	return n.nc
}

func (n *NATS) Close() error {
	if n.nc != nil {
		n.nc.Close()
	}
	return nil
}

type natsSub struct {
	cc  jetstream.ConsumeContext
	box *mailbox
}

func (s *natsSub) C() <-chan models.RoomSnapshot {
	return s.box.ch
}

func (s *natsSub) Close() error {
	s.cc.Stop()
	s.box.close()
	return nil
}

// StateID identifies the observable state of a snapshot, ignoring when it was
// read.
func StateID(snap models.RoomSnapshot) (string, error) {
	state := struct {
		Room         models.Room          `json:"room"`
		Participants []models.Participant `json:"participants"`
		Voters       []uuid.UUID          `json:"voters"`
	}{snap.Room, snap.Participants, snap.Voters}

	data, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgsPerSubject == b.MaxMsgsPerSubject &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}
