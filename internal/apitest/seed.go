package apitest

import (
	"fmt"
	"time"

	"github.com/aussiebroadwan/loyalty/pkg/idx"
	"github.com/aussiebroadwan/loyalty/pkg/loyaltysdk"
)

func (s *Server) seed() {
	admin := s.profileLocked(AdminEmail)
	admin.Roles[0].Role = "ADMIN"

	for _, c := range []struct {
		name, email, phone string
		points             int
		tier               loyaltysdk.Tier
	}{
		{"John Doe", "john@example.com", "+1-555-0123", 1250, loyaltysdk.TierGold},
		{"Jane Smith", "jane@example.com", "+1-555-0124", 850, loyaltysdk.TierSilver},
		{"Mike Johnson", "mike@example.com", "+1-555-0125", 2100, loyaltysdk.TierPlatinum},
	} {
		cust := s.newCustomerLocked(c.name, c.email, c.phone)
		cust.LoyaltyPoints = c.points
		cust.Tier = c.tier
	}

	for _, st := range []loyaltysdk.Store{
		{Name: "Main Store", Address: "123 Main St, Downtown", City: "Downtown", State: "CA", ZipCode: "90210"},
		{Name: "Mall Location", Address: "456 Mall Blvd, Suburbs", City: "Suburbs", State: "CA", ZipCode: "90211"},
	} {
		st.ID = idx.New().String()
		st.IsActive = true
		s.stores = append(s.stores, &st)
	}

	s.settings = loyaltysdk.LoyaltySettings{
		PointsPerDollar:       2,
		MoneyPerPoint:         0.5,
		Rounding:              true,
		MinPointsToRedeem:     100,
		TierBronzeMin:         0,
		TierSilverMin:         500,
		TierGoldMin:           1000,
		TierPlatinumMin:       2000,
		PointExpirationMonths: 12,
		WelcomeBonus:          100,
		ReferralBonus:         50,
	}
}

// StoreIDs returns the IDs of the seeded and created stores.
func (s *Server) StoreIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.stores))
	for _, st := range s.stores {
		ids = append(ids, st.ID)
	}
	return ids
}

// CustomerCodes returns the user codes of all customers.
func (s *Server) CustomerCodes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := make([]string, 0, len(s.customers))
	for _, c := range s.customers {
		codes = append(codes, c.UserCode)
	}
	return codes
}

func (s *Server) newCustomerLocked(name, email, phone string) *loyaltysdk.Customer {
	s.codeSeq++
	c := &loyaltysdk.Customer{
		ID:       idx.New().String(),
		Name:     name,
		Email:    email,
		Phone:    phone,
		UserCode: fmt.Sprintf("CX%04d", s.codeSeq),
		Tier:     loyaltysdk.TierBronze,
		JoinDate: time.Now().UTC().Format(time.DateOnly),
		IsActive: true,
	}
	s.customers = append(s.customers, c)
	return c
}

// profileLocked returns the staff profile for email, provisioning it with
// the default role on first sight.
func (s *Server) profileLocked(email string) *loyaltysdk.UserProfile {
	if p, ok := s.profiles[email]; ok {
		return p
	}
	now := time.Now().UTC()
	id := idx.New().String()
	p := &loyaltysdk.UserProfile{
		ID:            id,
		Email:         email,
		UserCode:      "U" + id[len(id)-6:],
		FullName:      email,
		Status:        loyaltysdk.UserStatusActive,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
		Roles: []loyaltysdk.RoleAssignment{{
			ID:     idx.New().String(),
			UserID: id,
			Role:   s.opts.DefaultRole,
		}},
	}
	s.profiles[email] = p
	return p
}

func roleNames(p *loyaltysdk.UserProfile) []string {
	names := make([]string, 0, len(p.Roles))
	for _, r := range p.Roles {
		if r.StoreID != nil {
			names = append(names, r.Role+"@"+*r.StoreID)
			continue
		}
		names = append(names, r.Role)
	}
	return names
}
