package lookup

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"warnlist/internal/domain"
	"warnlist/internal/listcache"

	"golang.org/x/crypto/blake2b"
)

const memoDigestSize = 16

// MemoKey derives the distributed memo key of an indicator: the prefix plus
// the hex BLAKE2b-128 digest of "type:value".
func MemoKey(indicatorType, value string) string {
	h, err := blake2b.New(memoDigestSize, nil)
	if err != nil {
		// only reachable with an invalid size or key
		panic(err)
	}
	h.Write([]byte(indicatorType))
	h.Write([]byte{':'})
	h.Write([]byte(value))
	return listcache.MemoKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// encodeMemo serializes matches as {listId: [entry, value]}. No match encodes
// to the empty payload so negatives are cached too.
func encodeMemo(matches []domain.Match) ([]byte, error) {
	if len(matches) == 0 {
		return []byte{}, nil
	}
	payload := make(map[uint][2]string, len(matches))
	for _, m := range matches {
		payload[m.ListID] = [2]string{m.Entry, m.Value}
	}
	return json.Marshal(payload)
}

// decodeMemo rebuilds matches in index order. Lists that are no longer enabled are skipped.
func decodeMemo(raw []byte, lists []domain.ListSummary) ([]domain.Match, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var payload map[uint][2]string
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode memo payload: %w", err)
	}

	var matches []domain.Match
	for _, list := range lists {
		hit, ok := payload[list.ID]
		if !ok {
			continue
		}
		matches = append(matches, domain.Match{
			ListID:   list.ID,
			ListName: list.Name,
			Entry:    hit[0],
			Value:    hit[1],
		})
	}
	return matches, nil
}
