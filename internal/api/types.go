package api

// User is the backend's snapshot of the authenticated user.
type User struct {
	ID              string   `json:"id"`
	Email           string   `json:"email"`
	Name            string   `json:"name"`
	Roles           []string `json:"roles"`
	IsOnboarded     bool     `json:"isOnboarded"`
	PersonID        string   `json:"personId,omitempty"`
	MemberID        string   `json:"memberId,omitempty"`
	IsPlatformAdmin bool     `json:"isPlatformAdmin,omitempty"`
}

// SessionResult is the common success shape of login, register, claim-profile
// and switch-church: a full first-party session.
type SessionResult struct {
	AccessToken string `json:"accessToken"`
	User        User   `json:"user"`
	ChurchID    string `json:"churchId"`
}

// Person is a previously-known person record the backend matched by email
// during a social login.
type Person struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// ClaimOffer is the "profile-claim-needed" branch of a social login: the
// backend found an unclaimed profile and wants the user to confirm it.
// TempToken is a short-lived credential scoped to the claim decision only;
// it is NOT a session token.
type ClaimOffer struct {
	TempToken string
	Person    Person
}

// SocialResult is the outcome of a social login. Exactly one of Session or
// Claim is set.
type SocialResult struct {
	Session *SessionResult
	Claim   *ClaimOffer
}

// IdentityClaims are the assertions the identity provider made about the
// user, forwarded to the backend on social login.
type IdentityClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// ClaimDecision is the user's answer to a claim offer.
// Claim=true links the session to PersonID; Claim=false creates a new profile.
type ClaimDecision struct {
	Claim    bool
	PersonID string
}

// Me is the response of GET /auth/me.
type Me struct {
	User     User
	ChurchID string
}

// Tenant is a church/organization as returned by POST /churches.
type Tenant struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Slug    string `json:"slug,omitempty"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
}

// CreateTenantPayload is the request body of POST /churches.
type CreateTenantPayload struct {
	Name    string `json:"name"`
	Slug    string `json:"slug,omitempty"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
}
