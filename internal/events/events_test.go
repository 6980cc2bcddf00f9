package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"
)

type sent struct {
	subject string
	data    []byte
}

func recordingPublisher(out *[]sent, err error) *NATS {
	return &NATS{
		publish: func(subject string, data []byte) error {
			*out = append(*out, sent{subject, data})
			return err
		},
		logger: slog.Default(),
	}
}

func TestNATS_PublishUpserted(t *testing.T) {
	var got []sent
	p := recordingPublisher(&got, nil)

	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	if err := p.PublishUpserted(context.Background(), Upserted{ID: "264837", Title: "간호서기", Created: true, At: at}); err != nil {
		t.Fatalf("PublishUpserted: %v", err)
	}
	if len(got) != 1 || got[0].subject != SubjectUpserted {
		t.Fatalf("sent = %+v", got)
	}

	var e Upserted
	if err := json.Unmarshal(got[0].data, &e); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if e.ID != "264837" || !e.Created || !e.At.Equal(at) {
		t.Errorf("payload = %+v", e)
	}
}

func TestNATS_PublishDeletedError(t *testing.T) {
	var got []sent
	boom := errors.New("nats: connection closed")
	p := recordingPublisher(&got, boom)

	err := p.PublishDeleted(context.Background(), Deleted{ID: "1"})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
	if len(got) != 1 || got[0].subject != SubjectDeleted {
		t.Errorf("sent = %+v", got)
	}
}

func TestNATS_CloseWithoutConn(t *testing.T) {
	p := &NATS{}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
