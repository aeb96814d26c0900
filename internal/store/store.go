// Package store provides remote token stores for deployments that cannot keep
// tokens on the local disk: PostgreSQL and S3-compatible object storage.
package store

import (
	"fmt"
	"path"
	"strings"

	sdkAuth "github.com/Infomaniak/infomaniak-login-go/sdk/auth"
)

// normalizeID cleans a record id and rejects ids escaping the store namespace.
func normalizeID(id string) (string, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(id, "\\", "/"))
	if trimmed == "" {
		return "", fmt.Errorf("token store: id is empty")
	}
	clean := path.Clean(strings.TrimLeft(trimmed, "/"))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("token store: invalid id %q", id)
	}
	return clean, nil
}

// recordID returns the normalized id of record, assigning the default id first.
func recordID(record *sdkAuth.Record) (string, error) {
	if strings.TrimSpace(record.ID) == "" {
		record.ID = sdkAuth.DefaultRecordID(record.Token)
	}
	return normalizeID(record.ID)
}
