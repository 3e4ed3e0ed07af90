package mailer

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestCheckDailyLimit(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sender := NewSMTPSender(nil, client, time.Second)
	cfg := &EmailConfiguration{ID: uuid.New(), DailyLimit: 2}
	ctx := context.Background()

	if err := sender.checkDailyLimit(ctx, cfg); err != nil {
		t.Fatalf("first send blocked: %v", err)
	}
	if err := sender.checkDailyLimit(ctx, cfg); err != nil {
		t.Fatalf("second send blocked: %v", err)
	}
	if err := sender.checkDailyLimit(ctx, cfg); err != ErrDailyLimitReached {
		t.Fatalf("third send error = %v, want ErrDailyLimitReached", err)
	}
}

func TestCheckDailyLimitDisabled(t *testing.T) {
	sender := NewSMTPSender(nil, nil, time.Second)
	cfg := &EmailConfiguration{ID: uuid.New(), DailyLimit: 1}

	// No Redis: the limit is advisory and never blocks.
	for i := 0; i < 3; i++ {
		if err := sender.checkDailyLimit(context.Background(), cfg); err != nil {
			t.Fatalf("send %d blocked without redis: %v", i, err)
		}
	}
}

func TestCheckDailyLimitZeroMeansUnlimited(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sender := NewSMTPSender(nil, client, time.Second)
	cfg := &EmailConfiguration{ID: uuid.New(), DailyLimit: 0}

	for i := 0; i < 5; i++ {
		if err := sender.checkDailyLimit(context.Background(), cfg); err != nil {
			t.Fatalf("send %d blocked with unlimited quota: %v", i, err)
		}
	}
}
