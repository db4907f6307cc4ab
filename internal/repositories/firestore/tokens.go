package firestore

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

// Cursor tokens pair the last seen sort key with the document ID so pages
// stay stable across concurrent writes.

func encodeCursorToken(sortKey, docID string) string {
	payload := sortKey + "|" + docID
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func decodeCursorToken(token string) (string, string, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", "", err
	}
	parts := strings.SplitN(string(data), "|", 2)
	if len(parts) != 2 {
		return "", "", errors.New("invalid token structure")
	}
	return parts[0], parts[1], nil
}

func encodeTimeCursorToken(ts time.Time, docID string) string {
	return encodeCursorToken(ts.UTC().Format(time.RFC3339Nano), docID)
}

func decodeTimeCursorToken(token string) (time.Time, string, error) {
	sortKey, docID, err := decodeCursorToken(token)
	if err != nil {
		return time.Time{}, "", err
	}
	ts, err := time.Parse(time.RFC3339Nano, sortKey)
	if err != nil {
		return time.Time{}, "", err
	}
	return ts, docID, nil
}
