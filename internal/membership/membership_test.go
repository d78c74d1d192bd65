package membership

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
)

type fakeBot struct {
	status string
	err    error
	calls  int
	last   tgbotapi.GetChatMemberConfig
}

func (f *fakeBot) GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	f.calls++
	f.last = config
	if f.err != nil {
		return tgbotapi.ChatMember{}, f.err
	}
	return tgbotapi.ChatMember{Status: f.status}, nil
}

func TestTelegramChecker(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		err        error
		wantPaid   bool
		wantReason string
	}{
		{"member", "member", nil, true, ""},
		{"creator", "creator", nil, true, ""},
		{"restricted", "restricted", nil, true, ""},
		{"left", "left", nil, false, ReasonNotMember},
		{"kicked", "kicked", nil, false, ReasonNotMember},
		{"api error", "", errors.New("Bad Request: user not found"), false, ReasonCheckFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot := &fakeBot{status: tt.status, err: tt.err}
			got := NewTelegramChecker(bot, "@sprint_paid").CheckMembership(context.Background(), 77)

			if got.IsPaid != tt.wantPaid || got.Reason != tt.wantReason {
				t.Fatalf("want={%v %q} got={%v %q}", tt.wantPaid, tt.wantReason, got.IsPaid, got.Reason)
			}
			if bot.last.UserID != 77 || bot.last.SuperGroupUsername != "@sprint_paid" {
				t.Fatalf("unexpected request: %+v", bot.last.ChatConfigWithUser)
			}
		})
	}
}

func TestTelegramCheckerNotConfigured(t *testing.T) {
	got := NewTelegramChecker(nil, "@sprint").CheckMembership(context.Background(), 1)
	if got.IsPaid || got.Reason != ReasonNotConfigured {
		t.Fatalf("nil bot: %+v", got)
	}

	bot := &fakeBot{status: "member"}
	got = NewTelegramChecker(bot, "  ").CheckMembership(context.Background(), 1)
	if got.IsPaid || got.Reason != ReasonNotConfigured || bot.calls != 0 {
		t.Fatalf("empty channel: %+v (calls=%d)", got, bot.calls)
	}
}

func TestChatConfig(t *testing.T) {
	numeric := chatConfig("-1001234567890", 5)
	if numeric.ChatID != -1001234567890 || numeric.SuperGroupUsername != "" {
		t.Fatalf("numeric channel: %+v", numeric)
	}

	named := chatConfig("sprint_paid", 5)
	if named.SuperGroupUsername != "@sprint_paid" || named.ChatID != 0 {
		t.Fatalf("named channel: %+v", named)
	}
}

type memCache struct {
	data   map[string]string
	getErr error
	sets   int
}

func (m *memCache) Get(ctx context.Context, key string) *redis.StringCmd {
	if m.getErr != nil {
		return redis.NewStringResult("", m.getErr)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	m.sets++
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

type countingChecker struct {
	result Membership
	calls  int
}

func (c *countingChecker) CheckMembership(ctx context.Context, telegramID int64) Membership {
	c.calls++
	return c.result
}

func TestCachedCheckerMemoises(t *testing.T) {
	next := &countingChecker{result: Membership{Reason: ReasonNotMember}}
	cache := &memCache{data: map[string]string{}}
	checker := NewCachedChecker(next, cache, time.Minute)

	for i := 0; i < 3; i++ {
		got := checker.CheckMembership(context.Background(), 10)
		if got.IsPaid || got.Reason != ReasonNotMember {
			t.Fatalf("call %d: unexpected %+v", i, got)
		}
	}
	if next.calls != 1 {
		t.Fatalf("want one upstream call, got %d", next.calls)
	}
}

func TestCachedCheckerSkipsFailures(t *testing.T) {
	next := &countingChecker{result: Membership{Reason: ReasonCheckFailed}}
	cache := &memCache{data: map[string]string{}}
	checker := NewCachedChecker(next, cache, time.Minute)

	checker.CheckMembership(context.Background(), 10)
	checker.CheckMembership(context.Background(), 10)

	if next.calls != 2 || cache.sets != 0 {
		t.Fatalf("failed checks must not be cached: calls=%d sets=%d", next.calls, cache.sets)
	}
}

func TestCachedCheckerFallsThroughOnRedisError(t *testing.T) {
	next := &countingChecker{result: Membership{IsPaid: true}}
	cache := &memCache{data: map[string]string{}, getErr: errors.New("connection refused")}
	checker := NewCachedChecker(next, cache, time.Minute)

	if got := checker.CheckMembership(context.Background(), 10); !got.IsPaid {
		t.Fatalf("want paid, got %+v", got)
	}
	if next.calls != 1 {
		t.Fatalf("want upstream call, got %d", next.calls)
	}
}
