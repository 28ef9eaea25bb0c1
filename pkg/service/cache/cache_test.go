package cache_test

import (
	"testing"
	"time"

	"github.com/advisory-lab/themis/pkg/domain/interfaces"
	"github.com/advisory-lab/themis/pkg/domain/model"
	"github.com/advisory-lab/themis/pkg/domain/types"
	"github.com/advisory-lab/themis/pkg/service/cache"
	"github.com/m-mizutani/gt"
)

func TestKey(t *testing.T) {
	t.Run("whitespace and case variants share a key", func(t *testing.T) {
		a := cache.Key("Your capital is at risk.", nil)
		b := cache.Key("  your   capital is\tat risk.  ", nil)
		gt.Value(t, a).Equal(b)
	})

	t.Run("different text produces different keys", func(t *testing.T) {
		a := cache.Key("your capital is at risk", nil)
		b := cache.Key("your capital is not at risk", nil)
		gt.Value(t, a).NotEqual(b)
	})

	t.Run("profile flags separate keys for the same text", func(t *testing.T) {
		plain := cache.Key("growth funds invest in equities", nil)
		flagged := cache.Key("growth funds invest in equities", &model.CustomerProfile{
			Flags: []string{model.FlagHighRisk},
		})
		gt.Value(t, plain).NotEqual(flagged)
	})

	t.Run("segment separates keys for the same text", func(t *testing.T) {
		retail := cache.Key("text", &model.CustomerProfile{Segment: "retail"})
		premium := cache.Key("text", &model.CustomerProfile{Segment: "premium"})
		gt.Value(t, retail).NotEqual(premium)
	})

	t.Run("flag order does not matter", func(t *testing.T) {
		a := cache.Key("text", &model.CustomerProfile{Flags: []string{"a", "b"}})
		b := cache.Key("text", &model.CustomerProfile{Flags: []string{"b", "a"}})
		gt.Value(t, a).Equal(b)
	})

	t.Run("nil and empty profile share a key", func(t *testing.T) {
		a := cache.Key("text", nil)
		b := cache.Key("text", &model.CustomerProfile{})
		gt.Value(t, a).Equal(b)
	})

	t.Run("key does not contain the source text", func(t *testing.T) {
		key := cache.Key("a very identifiable customer phrase", nil)
		gt.Value(t, len(key)).Equal(64)
	})
}

func TestCache(t *testing.T) {
	t.Run("put then get returns the entry", func(t *testing.T) {
		c, err := cache.New(0, 0)
		gt.NoError(t, err).Required()

		entry := &interfaces.CachedValidation{
			State: types.StateApproved,
			Result: &model.ValidationResult{
				Passed:     true,
				Confidence: 0.95,
				State:      types.StateApproved,
			},
			CachedAt: time.Now().UTC(),
		}

		key := cache.Key("some approved guidance", nil)
		c.Put(key, entry, 0)

		got, ok := c.Get(key)
		gt.Bool(t, ok).True()
		gt.Value(t, got.State).Equal(types.StateApproved)
	})

	t.Run("missing key reports absence", func(t *testing.T) {
		c, err := cache.New(0, 0)
		gt.NoError(t, err).Required()

		_, ok := c.Get(cache.Key("never stored", nil))
		gt.Bool(t, ok).False()
	})

	t.Run("entries expire after the TTL", func(t *testing.T) {
		c, err := cache.New(8, 10*time.Millisecond)
		gt.NoError(t, err).Required()

		key := cache.Key("short lived", nil)
		c.Put(key, &interfaces.CachedValidation{State: types.StateApproved}, 0)

		time.Sleep(30 * time.Millisecond)
		_, ok := c.Get(key)
		gt.Bool(t, ok).False()
	})

	t.Run("negative size is rejected", func(t *testing.T) {
		_, err := cache.New(-1, 0)
		gt.Error(t, err)
	})
}
