package remote

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
)

func TestClassifyNATS(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "permission", err: nats.ErrPermissionViolation, want: ErrPermissionDenied},
		{name: "authorization", err: nats.ErrAuthorization, want: ErrPermissionDenied},
		{name: "no servers", err: nats.ErrNoServers, want: ErrUnavailable},
		{name: "closed", err: fmt.Errorf("publish: %w", nats.ErrConnectionClosed), want: ErrUnavailable},
		{name: "no stream response", err: jetstream.ErrNoStreamResponse, want: ErrUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, want: ErrUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, classifyNATS(tc.err), tc.want)
		})
	}

	other := errors.New("boom")
	got := classifyNATS(other)
	assert.Equal(t, other, got)
}

func TestClassifyPostgres(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "insufficient privilege", err: &pq.Error{Code: "42501"}, want: ErrPermissionDenied},
		{name: "connection failure", err: &pq.Error{Code: "08006"}, want: ErrUnavailable},
		{name: "too many connections", err: &pq.Error{Code: "53300"}, want: ErrUnavailable},
		{name: "admin shutdown", err: &pq.Error{Code: "57P01"}, want: ErrUnavailable},
		{name: "bad conn", err: driver.ErrBadConn, want: ErrUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, classifyPostgres(tc.err), tc.want)
		})
	}

	unique := &pq.Error{Code: "23505"}
	got := classifyPostgres(unique)
	assert.NotErrorIs(t, got, ErrPermissionDenied)
	assert.NotErrorIs(t, got, ErrUnavailable)
}

func TestJetStreamStreamConfig(t *testing.T) {
	s := &JetStreamStore{config: DefaultJetStreamConfig()}
	sc := s.streamConfig()

	assert.Equal(t, "ROOM_SNAPSHOTS", sc.Name)
	assert.Equal(t, []string{"rooms.snapshots.>"}, sc.Subjects)
	assert.Equal(t, jetstream.LimitsPolicy, sc.Retention)
	assert.Equal(t, "rooms.snapshots.AB12", s.subject("AB12"))
	assert.True(t, isStreamConfigEqual(sc, s.streamConfig()))

	changed := sc
	changed.MaxAge = 0
	assert.False(t, isStreamConfigEqual(sc, changed))
}
