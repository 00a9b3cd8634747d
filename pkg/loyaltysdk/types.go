package loyaltysdk

import (
	"strings"
	"time"
)

// ============================================================================
// Endpoint paths
// ============================================================================

const (
	PathSendOTP     = "/auth/send-otp"
	PathVerifyOTP   = "/auth/verify-otp"
	PathRefresh     = "/auth/refresh"
	PathLogout      = "/auth/logout"
	PathLoginGoogle = "/login/google"
	PathLoginPhone  = "/login/phone"
	PathProfile     = "/users/profile"
	PathUsers       = "/users"
	PathTransaction = "/transactions"
	PathStores      = "/stores"
	PathSettings    = "/settings"
	PathAnalytics   = "/analytics"
)

// ============================================================================
// Auth Types
// ============================================================================

// TokenPair is the access/refresh token pair held by the client.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// UserStatus is the account status of an authenticated user.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusInactive  UserStatus = "INACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// RoleAssignment grants a role, optionally scoped to one store.
type RoleAssignment struct {
	ID      string  `json:"id"`
	UserID  string  `json:"userId"`
	StoreID *string `json:"storeId"`
	Role    string  `json:"role"`
}

// UserProfile is the authenticated user as returned by the profile endpoint
// and every login flow.
type UserProfile struct {
	ID            string           `json:"id"`
	Email         string           `json:"email"`
	UserCode      string           `json:"userCode"`
	FirstName     *string          `json:"firstName"`
	LastName      *string          `json:"lastName"`
	FullName      string           `json:"fullName"`
	PhoneNumber   *string          `json:"phoneNumber"`
	Status        UserStatus       `json:"status"`
	EmailVerified bool             `json:"emailVerified"`
	PhoneVerified bool             `json:"phoneVerified"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
	Roles         []RoleAssignment `json:"roles"`
}

// HasAnyRole reports whether the user holds one of roles, in any store.
// Roles compare case-insensitively.
func (u *UserProfile) HasAnyRole(roles ...string) bool {
	if u == nil {
		return false
	}
	for _, have := range u.Roles {
		for _, want := range roles {
			if strings.EqualFold(have.Role, want) {
				return true
			}
		}
	}
	return false
}

// LoginResponse is returned by every credential exchange.
type LoginResponse struct {
	User         UserProfile `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

// Tokens returns the pair carried by the response.
func (r LoginResponse) Tokens() TokenPair {
	return TokenPair{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
}

type SendOTPRequest struct {
	Email string `json:"email"`
}

type SendOTPResponse struct {
	Message string `json:"message"`
	OTPID   string `json:"otpId"`
}

// OTPType is the purpose an OTP was issued for.
type OTPType string

const (
	OTPTypeEmailVerification OTPType = "EMAIL_VERIFICATION"
	OTPTypePhoneVerification OTPType = "PHONE_VERIFICATION"
	OTPTypePasswordReset     OTPType = "PASSWORD_RESET"
	OTPTypeLogin             OTPType = "LOGIN_VERIFICATION"
)

type VerifyOTPRequest struct {
	Email   string  `json:"email"`
	OTPCode string  `json:"otpCode"`
	Type    OTPType `json:"type"`
}

// LoginMethod names the identity provider behind an ID token.
type LoginMethod string

const (
	LoginMethodGoogle LoginMethod = "google"
	LoginMethodPhone  LoginMethod = "phone"
)

type LoginRequest struct {
	IDToken string      `json:"idToken"`
	Method  LoginMethod `json:"method"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshResponse may omit the refresh token, in which case the old one stays valid.
type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

// ============================================================================
// Customer Types
// ============================================================================

// Tier is a loyalty tier. Tier thresholds are owned by the API.
type Tier string

const (
	TierBronze   Tier = "Bronze"
	TierSilver   Tier = "Silver"
	TierGold     Tier = "Gold"
	TierPlatinum Tier = "Platinum"
)

// Customer is a loyalty program member managed under /users.
type Customer struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone,omitempty"`
	UserCode      string `json:"userCode,omitempty"`
	LoyaltyPoints int    `json:"loyaltyPoints"`
	Tier          Tier   `json:"tier"`
	JoinDate      string `json:"joinDate"`
	Avatar        string `json:"avatar,omitempty"`
	IsActive      bool   `json:"isActive"`
}

type CreateCustomerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// UpdateCustomerRequest only sends the fields that are set.
type UpdateCustomerRequest struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	IsActive *bool   `json:"isActive,omitempty"`
}

// ============================================================================
// Transaction Types
// ============================================================================

type TransactionType string

const (
	TransactionEarn   TransactionType = "earn"
	TransactionRedeem TransactionType = "redeem"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionCancelled TransactionStatus = "cancelled"
)

type Transaction struct {
	ID           string            `json:"id"`
	UserID       string            `json:"userId"`
	StoreID      string            `json:"storeId,omitempty"`
	Type         TransactionType   `json:"type"`
	Points       int               `json:"points"`
	Amount       float64           `json:"amount"`
	Description  string            `json:"description"`
	Date         string            `json:"date"`
	Status       TransactionStatus `json:"status"`
	CustomerCode string            `json:"customerCode"`
}

type CreateTransactionRequest struct {
	CustomerCode          string          `json:"customerCode"`
	StoreID               string          `json:"storeId,omitempty"`
	Type                  TransactionType `json:"type"`
	Amount                float64         `json:"amount"`
	Description           string          `json:"description"`
	ExternalTransactionID string          `json:"externalTransactionId,omitempty"`
}

type UpdateTransactionRequest struct {
	Description *string            `json:"description,omitempty"`
	Status      *TransactionStatus `json:"status,omitempty"`
}

// ============================================================================
// Store Types
// ============================================================================

type Store struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Address           string `json:"address"`
	City              string `json:"city,omitempty"`
	State             string `json:"state,omitempty"`
	ZipCode           string `json:"zipCode,omitempty"`
	Phone             string `json:"phone,omitempty"`
	Manager           string `json:"manager,omitempty"`
	IsActive          bool   `json:"isActive"`
	TotalCustomers    int    `json:"totalCustomers"`
	TotalTransactions int    `json:"totalTransactions"`
	TotalPoints       int    `json:"totalPoints"`
}

type StoreRequest struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	ZipCode  string `json:"zipCode,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Manager  string `json:"manager,omitempty"`
	IsActive *bool  `json:"isActive,omitempty"`
}

// ============================================================================
// Settings & Analytics Types
// ============================================================================

type LoyaltySettings struct {
	PointsPerDollar       float64 `json:"pointsPerDollar"`
	MoneyPerPoint         float64 `json:"moneyPerPoint,omitempty"`
	Rounding              bool    `json:"rounding"`
	MinPointsToRedeem     int     `json:"minPointsToRedeem"`
	TierBronzeMin         int     `json:"tierBronzeMin"`
	TierSilverMin         int     `json:"tierSilverMin"`
	TierGoldMin           int     `json:"tierGoldMin"`
	TierPlatinumMin       int     `json:"tierPlatinumMin"`
	PointExpirationMonths int     `json:"pointExpirationMonths"`
	WelcomeBonus          int     `json:"welcomeBonus"`
	ReferralBonus         int     `json:"referralBonus"`
}

// UpdateSettingsRequest is a partial update; nil fields are left alone.
type UpdateSettingsRequest struct {
	PointsPerDollar       *float64 `json:"pointsPerDollar,omitempty"`
	MoneyPerPoint         *float64 `json:"moneyPerPoint,omitempty"`
	Rounding              *bool    `json:"rounding,omitempty"`
	MinPointsToRedeem     *int     `json:"minPointsToRedeem,omitempty"`
	PointExpirationMonths *int     `json:"pointExpirationMonths,omitempty"`
	WelcomeBonus          *int     `json:"welcomeBonus,omitempty"`
	ReferralBonus         *int     `json:"referralBonus,omitempty"`
}

type Analytics struct {
	TotalUsers           int        `json:"totalUsers"`
	ActiveUsers          int        `json:"activeUsers"`
	TotalTransactions    int        `json:"totalTransactions"`
	TotalPointsEarned    int        `json:"totalPointsEarned"`
	TotalPointsRedeemed  int        `json:"totalPointsRedeemed"`
	AveragePointsPerUser float64    `json:"averagePointsPerUser"`
	TopSpenders          []Customer `json:"topSpenders"`
	MonthlyGrowth        float64    `json:"monthlyGrowth"`
}

// ============================================================================
// Customer Lookup Types
// ============================================================================

// CustomerLookupParams identifies a store member by exactly one identifier.
type CustomerLookupParams struct {
	StoreID       string
	UserStoreCode string
	PhoneNumber   string
	Email         string
}

type CustomerLookupResponse struct {
	Customer struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		PhoneNumber   string `json:"phoneNumber"`
		FullName      string `json:"fullName"`
		UserCode      string `json:"userCode"`
		EmailVerified bool   `json:"emailVerified"`
		PhoneVerified bool   `json:"phoneVerified"`
		IsActive      bool   `json:"isActive"`
	} `json:"customer"`
	Membership struct {
		UserStoreCode       string  `json:"userStoreCode"`
		PointsBalance       int     `json:"pointsBalance"`
		TotalPointsEarned   int     `json:"totalPointsEarned"`
		TotalPointsRedeemed int     `json:"totalPointsRedeemed"`
		MemberSince         string  `json:"memberSince"`
		IsActive            bool    `json:"isActive"`
		Tier                string  `json:"tier"`
		LastTransaction     *string `json:"lastTransaction"`
	} `json:"membership"`
	Store struct {
		ID              string  `json:"id"`
		Name            string  `json:"name"`
		PointsPerAmount float64 `json:"pointsPerAmount"`
	} `json:"store"`
	RecentTransactions []LookupTransaction `json:"recentTransactions"`
}

type LookupTransaction struct {
	ID             string `json:"id"`
	Amount         string `json:"amount"`
	PointsEarned   int    `json:"pointsEarned"`
	PointsRedeemed int    `json:"pointsRedeemed"`
	Type           string `json:"type"`
	Description    string `json:"description"`
	CreatedAt      string `json:"createdAt"`
}
