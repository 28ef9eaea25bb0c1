package cli

import (
	"testing"

	"github.com/advisory-lab/themis/pkg/domain/model"
	"github.com/m-mizutani/fireconf"
	"github.com/m-mizutani/gt"
)

func TestIndexConfig(t *testing.T) {
	cfg := getIndexConfig()

	byName := map[string]fireconf.Collection{}
	for _, c := range cfg.Collections {
		byName[c.Name] = c
	}

	t.Run("every searched collection has indexes", func(t *testing.T) {
		for _, name := range []string{"memories", "cases", "rules", "audits"} {
			c, ok := byName[name]
			gt.Bool(t, ok).True().Required()
			gt.Array(t, c.Indexes).Longer(0)
		}
	})

	t.Run("vector indexes match the embedding dimension", func(t *testing.T) {
		for _, c := range cfg.Collections {
			for _, idx := range c.Indexes {
				for _, f := range idx.Fields {
					if f.Vector == nil {
						continue
					}
					gt.Value(t, f.Vector.Dimension).Equal(model.EmbeddingDimension)
				}
			}
		}
	})
}
