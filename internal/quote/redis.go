package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ariefcatur/go-shipment-booking/internal/redisx"
	"github.com/ariefcatur/go-shipment-booking/internal/shipments"
	"github.com/redis/go-redis/v9"
)

// consumeScript: compare-and-set reserved -> consumed di sisi Redis, jadi dua
// consume yang balapan tidak mungkin sama-sama menang.
var consumeScript = redis.NewScript(`
local st = redis.call('HGET', KEYS[1], 'status')
if not st then return {'missing'} end
if st ~= 'reserved' then return {st} end
local exp = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))
if tonumber(ARGV[1]) >= exp then
  redis.call('HSET', KEYS[1], 'status', 'expired')
  return {'expired'}
end
redis.call('HSET', KEYS[1], 'status', 'consumed')
return {'consumed', redis.call('HGET', KEYS[1], 'data')}
`)

type RedisStore struct {
	R *redis.Client
}

func (s *RedisStore) Save(ctx context.Context, rs []shipments.QuoteReservation) error {
	_, err := s.R.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, r := range rs {
			data, err := json.Marshal(r)
			if err != nil {
				return err
			}
			key := fmt.Sprintf(redisx.KeyQuote, r.QuoteID)
			p.HSet(ctx, key,
				"status", string(shipments.QuoteReserved),
				"expires_at", r.ExpiresAt.UnixMilli(),
				"data", data,
			)
			// key hidup lebih lama dari TTL quote supaya expired/consumed tetap bisa dibedakan dari not found
			p.ExpireAt(ctx, key, r.ExpiresAt.Add(redisx.TTLQuoteRetention))
		}
		return nil
	})
	return err
}

func (s *RedisStore) Consume(ctx context.Context, quoteID string, now time.Time) (*shipments.QuoteReservation, error) {
	key := fmt.Sprintf(redisx.KeyQuote, quoteID)
	res, err := consumeScript.Run(ctx, s.R, []string{key}, now.UnixMilli()).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("consume quote: %w", err)
	}
	if len(res) == 0 {
		return nil, shipments.ErrQuoteNotFound
	}
	switch res[0] {
	case "missing":
		return nil, shipments.ErrQuoteNotFound
	case string(shipments.QuoteExpired):
		return nil, shipments.ErrQuoteExpired
	case string(shipments.QuoteConsumed):
		if len(res) < 2 {
			// status sudah consumed sebelum script ini jalan
			return nil, shipments.ErrQuoteConsumed
		}
	default:
		return nil, shipments.ErrQuoteConsumed
	}

	var r shipments.QuoteReservation
	if err := json.Unmarshal([]byte(res[1]), &r); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}
	r.Status = shipments.QuoteConsumed
	return &r, nil
}
