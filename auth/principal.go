package auth

import (
	"encoding/json"
	"strconv"
)

// Principal is the Respond.io user a bearer token was issued to.
type Principal struct {
	IssuedAt int64
	ID       int64
	SpaceID  int64
	OrgID    int64
	Type     string

	raw json.RawMessage
}

var _ UserInfo = (*Principal)(nil)

// UserID returns the Respond.io user ID.
func (p *Principal) UserID() string { return strconv.FormatInt(p.ID, 10) }

// Claims decodes the full token payload into ref.
func (p *Principal) Claims(ref any) error {
	return json.Unmarshal(p.raw, ref)
}

// tokenClaims is the payload shape a Respond.io token must carry. Pointers
// distinguish absent claims from zero values.
type tokenClaims struct {
	IssuedAt *float64 `json:"iat" validate:"required"`
	ID       *float64 `json:"id" validate:"required"`
	SpaceID  *float64 `json:"spaceId" validate:"required"`
	OrgID    *float64 `json:"orgId" validate:"required"`
	Type     *string  `json:"type" validate:"required"`
}
