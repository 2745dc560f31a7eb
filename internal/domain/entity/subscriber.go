package entity

import (
	"fmt"
	"strconv"
	"strings"
)

// SubscriberType distinguishes notification targets.
type SubscriberType string

const (
	SubscriberTypeGuild SubscriberType = "guild"
	SubscriberTypeDM    SubscriberType = "dm"
)

// ParseSubscriberType converts a stored or user supplied value into a SubscriberType.
func ParseSubscriberType(s string) (SubscriberType, error) {
	switch SubscriberType(strings.ToLower(strings.TrimSpace(s))) {
	case SubscriberTypeGuild:
		return SubscriberTypeGuild, nil
	case SubscriberTypeDM:
		return SubscriberTypeDM, nil
	default:
		return "", &ValidationError{Field: "type", Message: fmt.Sprintf("unknown subscriber type %q", s)}
	}
}

// String implements fmt.Stringer.
func (t SubscriberType) String() string { return string(t) }

// SubscriberTarget identifies a subscriber before it has been persisted.
type SubscriberTarget struct {
	Type     SubscriberType
	TargetID string // guild snowflake for Guild, user snowflake for DM
}

// Validate checks that the target carries a known type and a Discord snowflake.
func (t SubscriberTarget) Validate() error {
	if _, err := ParseSubscriberType(string(t.Type)); err != nil {
		return err
	}
	if t.TargetID == "" {
		return &ValidationError{Field: "target_id", Message: "target_id is required"}
	}
	if _, err := strconv.ParseUint(t.TargetID, 10, 64); err != nil {
		return &ValidationError{Field: "target_id", Message: "target_id must be a numeric snowflake"}
	}
	return nil
}

// Subscriber is a notification target. (Type, TargetID) is unique.
type Subscriber struct {
	ID       int64
	Type     SubscriberType
	TargetID string
}

// Target returns the identifying pair of the subscriber.
func (s *Subscriber) Target() SubscriberTarget {
	return SubscriberTarget{Type: s.Type, TargetID: s.TargetID}
}

// Subscription links a Feed to a Subscriber. (FeedID, SubscriberID) is unique.
type Subscription struct {
	ID           int64
	FeedID       int64
	SubscriberID int64
}
