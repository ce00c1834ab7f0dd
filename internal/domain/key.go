package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// RecordKey is a content-derived identifier for an offer inside one source's
// history. Keys are collision-resistant but not assumed globally unique;
// genuinely distinct offers hashing to the same key are disambiguated with a
// numeric suffix.
type RecordKey string

// KeyFor derives the record key from the offer's descriptive fields. Price is
// part of the recipe so listings that differ only in price still get distinct
// keys, but identity continuity across price changes is handled by the
// similarity oracle, not by this key.
func KeyFor(o Offer) RecordKey {
	id := strings.Join([]string{o.CostName, o.CPU, o.RAM, o.Storage, o.Price}, "|")
	sum := md5.Sum([]byte(id))
	return RecordKey(hex.EncodeToString(sum[:]))
}

// UniqueKey returns key itself when free in history, otherwise the first
// suffixed variant (key_1, key_2, ...) that is.
func UniqueKey(key RecordKey, history SourceHistory) RecordKey {
	candidate := key
	for n := 1; ; n++ {
		if _, taken := history[candidate]; !taken {
			return candidate
		}
		candidate = RecordKey(fmt.Sprintf("%s_%d", key, n))
	}
}
