package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Subject identifies the community member asking for verification.
type Subject struct {
	ID          string // Stable platform-assigned id
	DisplayName string // Human readable tag, only used in the message
}

// Challenge is a pending wallet ownership proof. It is held in the
// pending_verifications collection keyed by subject id.
type Challenge struct {
	ID            string    `json:"id"`
	SubjectID     string    `json:"subject_id"`
	ClaimedWallet string    `json:"wallet_address"`
	Message       string    `json:"message"`
	Nonce         string    `json:"nonce"`
	IssuedAt      time.Time `json:"timestamp"`
	ExpiresAt     time.Time `json:"expires"`
}

// Expired reports whether the challenge can no longer be answered at now.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// ChallengeMessage is the parsed form of the text a member signs.
type ChallengeMessage struct {
	DisplayName string
	SubjectID   string
	Wallet      string
	Community   string
	Nonce       string
	Timestamp   time.Time
}

const (
	msgAccountPrefix   = "Verify Discord account: "
	msgWalletPrefix    = "Wallet: "
	msgCommunityPrefix = "Server: "
	msgNoncePrefix     = "Nonce: "
	msgTimestampPrefix = "Timestamp: "
)

// String renders the message. The layout is stable: signatures are made
// over these exact bytes.
func (m ChallengeMessage) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s (%s)\n", msgAccountPrefix, m.DisplayName, m.SubjectID)
	fmt.Fprintf(&b, "%s%s\n", msgWalletPrefix, m.Wallet)
	fmt.Fprintf(&b, "%s%s\n", msgCommunityPrefix, m.Community)
	fmt.Fprintf(&b, "%s%s\n", msgNoncePrefix, m.Nonce)
	fmt.Fprintf(&b, "%s%d", msgTimestampPrefix, m.Timestamp.UnixMilli())
	return b.String()
}

// ParseChallengeMessage reads a message produced by ChallengeMessage.String.
func ParseChallengeMessage(s string) (ChallengeMessage, error) {
	lines := strings.Split(s, "\n")
	if len(lines) != 5 {
		return ChallengeMessage{}, fmt.Errorf("expected 5 lines, got %d", len(lines))
	}

	var m ChallengeMessage
	account, err := field(lines[0], msgAccountPrefix)
	if err != nil {
		return ChallengeMessage{}, err
	}
	open := strings.LastIndex(account, " (")
	if open < 0 || !strings.HasSuffix(account, ")") {
		return ChallengeMessage{}, fmt.Errorf("malformed account line %q", lines[0])
	}
	m.DisplayName = account[:open]
	m.SubjectID = account[open+2 : len(account)-1]

	if m.Wallet, err = field(lines[1], msgWalletPrefix); err != nil {
		return ChallengeMessage{}, err
	}
	if m.Community, err = field(lines[2], msgCommunityPrefix); err != nil {
		return ChallengeMessage{}, err
	}
	if m.Nonce, err = field(lines[3], msgNoncePrefix); err != nil {
		return ChallengeMessage{}, err
	}
	ts, err := field(lines[4], msgTimestampPrefix)
	if err != nil {
		return ChallengeMessage{}, err
	}
	millis, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ChallengeMessage{}, fmt.Errorf("malformed timestamp: %w", err)
	}
	m.Timestamp = time.UnixMilli(millis)

	return m, nil
}

func field(line, prefix string) (string, error) {
	if !strings.HasPrefix(line, prefix) {
		return "", fmt.Errorf("expected %q prefix in %q", prefix, line)
	}
	return strings.TrimPrefix(line, prefix), nil
}
