package bspbrush

import (
	"log"
	"strconv"
	"strings"

	"github.com/saiko-tech/brushmesh/pkg/vmf"
)

// parseEntities reads the entity lump: a sequence of { "key" "value" ... } blocks.
// Entities the compiler generated carry no hammerid and get ID 0.
func parseEntities(str string, logger *log.Logger) []vmf.Entity {
	blocks := strings.Split(str, "}")
	entities := make([]vmf.Entity, 0, len(blocks))

	for _, block := range blocks {
		block = strings.TrimPrefix(strings.TrimSpace(block), "{")

		props := make(map[string]string)

		for _, entry := range strings.Split(block, "\n") {
			kv := strings.Split(entry, "\"")
			if len(kv) != 5 {
				continue
			}

			props[strings.ToLower(kv[1])] = kv[3]
		}

		if len(props) == 0 {
			continue
		}

		e := vmf.Entity{
			ClassName:  props["classname"],
			Properties: props,
		}

		if raw, ok := props["hammerid"]; ok {
			id, err := strconv.Atoi(raw)
			if err != nil {
				logger.Printf("entity %q: invalid hammerid %q", e.ClassName, raw)
			}

			e.ID = id
		}

		entities = append(entities, e)
	}

	return entities
}
