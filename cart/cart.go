package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"shop-svc/models"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	MinQuantity = 1
	MaxQuantity = 20
)

var ErrInvalidQuantity = fmt.Errorf("quantity must be between %d and %d", MinQuantity, MaxQuantity)

// Store keeps session carts as redis hashes: cart:<session> maps a product
// id to the JSON encoded line.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// Session returns the cart bound to sessionID.
func (s *Store) Session(sessionID string) *Cart {
	return &Cart{rdb: s.rdb, ttl: s.ttl, key: "cart:" + sessionID}
}

type Cart struct {
	rdb *redis.Client
	ttl time.Duration
	key string
}

// Add puts quantity of product into the cart. With override the stored
// quantity is replaced, otherwise it is increased. The price is captured now
// and kept even if the catalog changes later.
func (c *Cart) Add(ctx context.Context, product *models.Product, quantity int, override bool) error {
	if quantity < MinQuantity || quantity > MaxQuantity {
		return ErrInvalidQuantity
	}
	field := strconv.Itoa(product.ID)

	return c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		line := models.CartLine{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
		}

		raw, err := tx.HGet(ctx, c.key, field).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("failed to read cart line: %w", err)
		default:
			var existing models.CartLine
			if err := json.Unmarshal(raw, &existing); err != nil {
				return fmt.Errorf("failed to decode cart line: %w", err)
			}
			line.Price = existing.Price
			if !override {
				line.Quantity = existing.Quantity
			}
		}
		line.Quantity += quantity

		data, err := json.Marshal(line)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, c.key, field, data)
			pipe.Expire(ctx, c.key, c.ttl)
			return nil
		})
		return err
	}, c.key)
}

func (c *Cart) Remove(ctx context.Context, productID int) error {
	return c.rdb.HDel(ctx, c.key, strconv.Itoa(productID)).Err()
}

// Lines returns the cart contents ordered by product id.
func (c *Cart) Lines(ctx context.Context) ([]models.CartLine, error) {
	raw, err := c.rdb.HGetAll(ctx, c.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read cart: %w", err)
	}

	lines := make([]models.CartLine, 0, len(raw))
	for _, v := range raw {
		var line models.CartLine
		if err := json.Unmarshal([]byte(v), &line); err != nil {
			return nil, fmt.Errorf("failed to decode cart line: %w", err)
		}
		lines = append(lines, line)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines, nil
}

// Len is the number of units in the cart, not the number of lines.
func (c *Cart) Len(ctx context.Context) (int, error) {
	lines, err := c.Lines(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, line := range lines {
		n += line.Quantity
	}
	return n, nil
}

func (c *Cart) Total(ctx context.Context) (decimal.Decimal, error) {
	lines, err := c.Lines(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return Total(lines), nil
}

func (c *Cart) Clear(ctx context.Context) error {
	return c.rdb.Del(ctx, c.key).Err()
}

func Total(lines []models.CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Cost())
	}
	return total
}
