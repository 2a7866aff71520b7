package ports

import "time"

// Tokenizer issues and parses the bearer tokens of the HTTP surface.
type Tokenizer interface {
	// SubjectToAccessToken issues a token for a subject that just proved
	// wallet ownership.
	SubjectToAccessToken(subjectID, wallet string) (string, time.Time, error)
	AccessTokenToSubject(token string) (subjectID string, wallet string, err error)

	AdminToken(name string, ttl time.Duration) (string, error)
	ValidateAdminToken(token string) (name string, err error)
}
