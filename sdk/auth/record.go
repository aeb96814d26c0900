package auth

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Infomaniak/infomaniak-login-go/internal/auth/infomaniak"
	"github.com/Infomaniak/infomaniak-login-go/internal/config"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ProviderInfomaniak is the provider identifier stamped into token files.
const ProviderInfomaniak = "infomaniak"

// Record is a persisted token plus the settings it was issued under.
type Record struct {
	// ID identifies the record inside a store, normally its file name.
	ID string
	// Provider is always ProviderInfomaniak for files written by this package.
	Provider string
	// Token is the current token. Replace it wholesale after a refresh.
	Token *infomaniak.ApiToken
	// ClientID and LoginURL record where the token was issued.
	ClientID string
	LoginURL string
	// AccessType is "offline" or "none".
	AccessType string
	// LastRefreshedAt is when Token was obtained.
	LastRefreshedAt time.Time
	// Path is set by the store that loaded or saved the record.
	Path string
}

// NewRecord builds a record for a freshly issued token.
func NewRecord(token *infomaniak.ApiToken, cfg infomaniak.Config) *Record {
	return &Record{
		ID:              DefaultRecordID(token),
		Provider:        ProviderInfomaniak,
		Token:           token,
		ClientID:        cfg.ClientID(),
		LoginURL:        cfg.LoginURL().String(),
		AccessType:      cfg.AccessType().String(),
		LastRefreshedAt: time.Now(),
	}
}

// WithToken returns a copy of r carrying token, as after a refresh or derive.
func (r *Record) WithToken(token *infomaniak.ApiToken) *Record {
	next := *r
	next.Token = token
	next.LastRefreshedAt = time.Now()
	return &next
}

// IssuerConfig returns a copy of cfg carrying the client id, login URL and
// access type r was issued under. Fields the record lacks keep cfg's value.
func (r *Record) IssuerConfig(cfg *config.Config) *config.Config {
	next := *cfg
	overrides := []struct {
		name   string
		stored string
		field  *string
	}{
		{"client-id", r.ClientID, &next.ClientID},
		{"login-url", r.LoginURL, &next.LoginURL},
		{"access-type", r.AccessType, &next.AccessType},
	}
	for _, o := range overrides {
		stored := strings.TrimSpace(o.stored)
		if stored == "" || stored == *o.field {
			continue
		}
		log.WithField("record", r.ID).Debugf("using %s %q stored with the token instead of %q", o.name, stored, *o.field)
		*o.field = stored
	}
	return &next
}

// DefaultRecordID names the record of token after its user id.
func DefaultRecordID(token *infomaniak.ApiToken) string {
	if token != nil && token.UserID != 0 {
		return fmt.Sprintf("infomaniak-%d.json", token.UserID)
	}
	return fmt.Sprintf("infomaniak-%s.json", uuid.NewString())
}

// MarshalRecord encodes r as a token file: the token JSON with the record
// metadata stamped alongside.
func MarshalRecord(r *Record) ([]byte, error) {
	if r == nil || r.Token == nil {
		return nil, fmt.Errorf("auth record: token is nil")
	}
	raw, err := json.Marshal(r.Token)
	if err != nil {
		return nil, fmt.Errorf("auth record: marshal token failed: %w", err)
	}

	provider := r.Provider
	if provider == "" {
		provider = ProviderInfomaniak
	}
	fields := []struct {
		path  string
		value any
	}{
		{"type", provider},
		{"client_id", r.ClientID},
		{"login_url", r.LoginURL},
		{"access_type", r.AccessType},
	}
	for _, f := range fields {
		if raw, err = sjson.SetBytes(raw, f.path, f.value); err != nil {
			return nil, fmt.Errorf("auth record: set %s failed: %w", f.path, err)
		}
	}
	if !r.LastRefreshedAt.IsZero() {
		if raw, err = sjson.SetBytes(raw, "last_refresh", r.LastRefreshedAt.Format(time.RFC3339)); err != nil {
			return nil, fmt.Errorf("auth record: set last_refresh failed: %w", err)
		}
	}
	return raw, nil
}

// UnmarshalRecord decodes a token file written by MarshalRecord.
func UnmarshalRecord(data []byte) (*Record, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("auth record: invalid json")
	}
	token, err := infomaniak.ParseApiToken(data)
	if err != nil {
		return nil, fmt.Errorf("auth record: %w", err)
	}

	fields := gjson.GetManyBytes(data, "type", "client_id", "login_url", "access_type", "last_refresh")
	record := &Record{
		Provider:   strings.TrimSpace(fields[0].String()),
		Token:      token,
		ClientID:   fields[1].String(),
		LoginURL:   fields[2].String(),
		AccessType: fields[3].String(),
	}
	if record.Provider == "" {
		record.Provider = ProviderInfomaniak
	}
	if last := fields[4].String(); last != "" {
		if parsed, errParse := time.Parse(time.RFC3339, last); errParse == nil {
			record.LastRefreshedAt = parsed
		}
	}
	return record, nil
}
