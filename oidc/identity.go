package oidc

import (
	"fmt"
	"time"
)

// Identity is the authenticated user profile, projected from either
// the id_token claims or the /userinfo response. Standard OIDC claims
// land in the typed fields; anything else is kept in CustomClaims.
type Identity struct {
	Sub                 string
	Name                string
	GivenName           string
	FamilyName          string
	MiddleName          string
	Nickname            string
	PreferredUsername   string
	Profile             string
	Picture             string
	Website             string
	Email               string
	EmailVerified       bool
	Gender              string
	Birthdate           string
	Zoneinfo            string
	Locale              string
	PhoneNumber         string
	PhoneNumberVerified bool
	Address             string
	UpdatedAt           time.Time

	// Nonce and AtHash are carried for response validation and are not
	// part of the user profile proper.
	Nonce  string
	AtHash string

	// Permissions is populated from the access token when an audience
	// is configured.
	Permissions []string

	CustomClaims map[string]interface{}
}

// ProjectClaims projects a raw claim map into an Identity. Unknown
// claims are collected into CustomClaims rather than dropped.
func ProjectClaims(claims map[string]interface{}) *Identity {
	id := &Identity{}
	for name, value := range claims {
		switch name {
		case "sub":
			id.Sub = claimString(value)
		case "name":
			id.Name = claimString(value)
		case "given_name":
			id.GivenName = claimString(value)
		case "family_name":
			id.FamilyName = claimString(value)
		case "middle_name":
			id.MiddleName = claimString(value)
		case "nickname":
			id.Nickname = claimString(value)
		case "preferred_username":
			id.PreferredUsername = claimString(value)
		case "profile":
			id.Profile = claimString(value)
		case "picture":
			id.Picture = claimString(value)
		case "website":
			id.Website = claimString(value)
		case "email":
			id.Email = claimString(value)
		case "email_verified":
			id.EmailVerified = claimBool(value)
		case "gender":
			id.Gender = claimString(value)
		case "birthdate":
			id.Birthdate = claimString(value)
		case "zoneinfo":
			id.Zoneinfo = claimString(value)
		case "locale":
			id.Locale = claimString(value)
		case "phone_number":
			id.PhoneNumber = claimString(value)
		case "phone_number_verified":
			id.PhoneNumberVerified = claimBool(value)
		case "address":
			id.Address = claimString(value)
		case "updated_at":
			id.UpdatedAt = claimTime(value)
		case "nonce":
			id.Nonce = claimString(value)
		case "at_hash":
			id.AtHash = claimString(value)
		default:
			if id.CustomClaims == nil {
				id.CustomClaims = map[string]interface{}{}
			}
			id.CustomClaims[name] = value
		}
	}
	return id
}

// IdentityFromIDToken decodes an id_token payload and projects it into
// an Identity.
func IdentityFromIDToken(t IDToken) (*Identity, error) {
	const op = "oidc.IdentityFromIDToken"
	var claims map[string]interface{}
	if err := t.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ProjectClaims(claims), nil
}

// AugmentPermissions copies the permissions list from the access token
// payload into the identity. A token without a permissions claim
// leaves the identity unchanged.
func (id *Identity) AugmentPermissions(t AccessToken) error {
	const op = "Identity.AugmentPermissions"
	claims, err := t.Claims()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(claims.Permissions) > 0 {
		id.Permissions = claims.Permissions
	}
	return nil
}

func claimString(v interface{}) string {
	s, _ := v.(string)
	return s
}

// claimBool tolerates providers that serialize booleans as strings.
func claimBool(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	}
	return false
}

// claimTime parses the updated_at claim, which providers serialize as
// either an RFC 3339 string or a numeric unix timestamp. Unparseable
// values yield the zero time.
func claimTime(v interface{}) time.Time {
	switch t := v.(type) {
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed
		}
	case float64:
		return time.Unix(int64(t), 0).UTC()
	}
	return time.Time{}
}
