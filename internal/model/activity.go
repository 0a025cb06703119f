package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ActivityKind tags what produced an activity record.
type ActivityKind string

// Activity kinds for categorizing balance changes.
const (
	KindDailyClaim ActivityKind = "daily_claim"     // Daily login bonus
	KindReferral   ActivityKind = "referral"        // Referral bonus for the referrer
	KindWithdrawal ActivityKind = "withdrawal"      // Points debited by a withdrawal request
	KindTask       ActivityKind = "task_completion" // Generic task, detail is passed through

	socialPrefix = "social_"
)

// SocialKind returns the activity kind for a visit to the given channel.
func SocialKind(channel string) ActivityKind {
	return ActivityKind(socialPrefix + channel)
}

// SocialChannel reports the channel of a social-visit kind.
func (k ActivityKind) SocialChannel() (string, bool) {
	if !strings.HasPrefix(string(k), socialPrefix) {
		return "", false
	}
	return strings.TrimPrefix(string(k), socialPrefix), true
}

// Detail is the structured payload attached to an activity.
// The set of variants is closed; RawDetail carries anything else unchanged.
type Detail interface {
	detail()
}

// ClaimDetail is attached to daily claims.
type ClaimDetail struct {
	ClaimTime time.Time `json:"claim_time"`
}

// ReferralDetail is attached to referral grants.
type ReferralDetail struct {
	ReferredID int64 `json:"referred_id"`
}

// SocialDetail is attached to social-visit grants.
type SocialDetail struct {
	Channel string `json:"social_type"`
	URL     string `json:"url"`
}

// WithdrawalDetail carries the caller-supplied withdrawal payload.
type WithdrawalDetail struct {
	Fields map[string]any
}

// RawDetail keeps payloads of unknown or generic kinds as-is.
type RawDetail struct {
	Fields map[string]any
}

func (ClaimDetail) detail()      {}
func (ReferralDetail) detail()   {}
func (SocialDetail) detail()     {}
func (WithdrawalDetail) detail() {}
func (RawDetail) detail()        {}

// MarshalJSON writes the caller fields as a flat object.
func (d WithdrawalDetail) MarshalJSON() ([]byte, error) {
	return marshalFields(d.Fields)
}

// MarshalJSON writes the passthrough fields as a flat object.
func (d RawDetail) MarshalJSON() ([]byte, error) {
	return marshalFields(d.Fields)
}

func marshalFields(fields map[string]any) ([]byte, error) {
	if fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(fields)
}

// EncodeDetail serializes a detail for the details JSONB column.
func EncodeDetail(d Detail) ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

// DecodeDetail maps a stored payload back to the variant for its kind.
// Payloads that do not fit their kind fall back to RawDetail.
func DecodeDetail(kind ActivityKind, raw []byte) (Detail, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = []byte("{}")
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode activity detail: %w", err)
	}

	switch {
	case kind == KindDailyClaim:
		var d ClaimDetail
		if err := json.Unmarshal(raw, &d); err == nil && !d.ClaimTime.IsZero() {
			return d, nil
		}
	case kind == KindReferral:
		var d ReferralDetail
		if err := json.Unmarshal(raw, &d); err == nil && d.ReferredID != 0 {
			return d, nil
		}
	case kind == KindWithdrawal:
		return WithdrawalDetail{Fields: fields}, nil
	default:
		if _, ok := kind.SocialChannel(); ok {
			var d SocialDetail
			if err := json.Unmarshal(raw, &d); err == nil && d.Channel != "" {
				return d, nil
			}
		}
	}

	return RawDetail{Fields: fields}, nil
}
