package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/user/chatvault/internal/adapter/metrics"
	"github.com/user/chatvault/internal/domain"
	"github.com/user/chatvault/internal/staging"
)

func TestIngest(t *testing.T) {
	t.Run("decoded line is immediately queryable", func(t *testing.T) {
		buffer := staging.NewBuffer()
		uc := NewIngestUseCase(buffer, testLogger, metrics.New(prometheus.NewRegistry()))

		uc.Ingest(context.Background(), domain.Unstructured{
			ChannelID: "1",
			UserID:    "2",
			Timestamp: 1000,
			Raw:       ":foo!foo@foo.tmi.twitch.tv PRIVMSG #bar :hello",
		})

		got := buffer.Slice("1", "", time.UnixMilli(0), time.UnixMilli(2000), false)
		if len(got) != 1 {
			t.Fatalf("expected 1 buffered message, got %d", len(got))
		}
		if got[0].Text != "hello" || got[0].UserLogin != "foo" {
			t.Errorf("unexpected decoded message: %+v", got[0])
		}
	})

	t.Run("undecodable line is dropped", func(t *testing.T) {
		buffer := staging.NewBuffer()
		uc := NewIngestUseCase(buffer, testLogger, metrics.New(prometheus.NewRegistry()))

		uc.Ingest(context.Background(), domain.Unstructured{
			ChannelID: "1",
			Timestamp: 1000,
			Raw:       ":tmi.twitch.tv BOGUSCMD #bar :hi",
		})

		if buffer.Pending() != 0 {
			t.Errorf("expected the line to be dropped, %d buffered", buffer.Pending())
		}
	})
}
