package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type ownerProbe struct {
	Owner string `json:"owner"`
}

// CountOwnedResults scans every result document and counts those whose owner
// field matches owner. Unreadable documents are skipped.
func CountOwnedResults(ctx context.Context, s Store, owner string) (int, error) {
	owner = strings.TrimSpace(owner)
	keys, err := s.List(ctx, resultsPrefix)
	if err != nil {
		return 0, fmt.Errorf("list results: %w", err)
	}
	count := 0
	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		data, err := s.Read(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return count, ctx.Err()
			}
			continue
		}
		var probe ownerProbe
		if json.Unmarshal(data, &probe) != nil {
			continue
		}
		if probe.Owner == owner {
			count++
		}
	}
	return count, nil
}
