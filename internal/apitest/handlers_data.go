package apitest

import (
	"cmp"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/loyalty/pkg/httpx"
	"github.com/aussiebroadwan/loyalty/pkg/idx"
	"github.com/aussiebroadwan/loyalty/pkg/loyaltysdk"
)

// ============================================================================
// Customers
// ============================================================================

func (s *Server) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]loyaltysdk.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		out = append(out, *c)
	}
	s.mu.Unlock()

	httpx.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) findCustomerLocked(match func(*loyaltysdk.Customer) bool) (*loyaltysdk.Customer, int) {
	for i, c := range s.customers {
		if match(c) {
			return c, i
		}
	}
	return nil, -1
}

func (s *Server) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	defer s.mu.Unlock()

	c, _ := s.findCustomerLocked(func(c *loyaltysdk.Customer) bool { return c.ID == id })
	if c == nil {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Customer not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (s *Server) handleCustomerByCode(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	s.mu.Lock()
	defer s.mu.Unlock()

	c, _ := s.findCustomerLocked(func(c *loyaltysdk.Customer) bool { return strings.EqualFold(c.UserCode, code) })
	if c == nil {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Customer not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (s *Server) handleCustomerSubresource(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("rest") != "transactions" {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Resource not found")
		return
	}
	s.handleCustomerTransactions(w, r)
}

func (s *Server) handleCustomerTransactions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	out := make([]loyaltysdk.Transaction, 0)
	for _, t := range s.transactions {
		if t.UserID == id {
			out = append(out, *t)
		}
	}
	s.mu.Unlock()

	httpx.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req loyaltysdk.CreateCustomerRequest
	if !decode(w, r, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		httpx.WriteValidationError(w, errs)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, _ := s.findCustomerLocked(func(c *loyaltysdk.Customer) bool { return c.Email == req.Email }); c != nil {
		httpx.WriteError(w, http.StatusConflict, "conflict", "A customer with this email already exists")
		return
	}

	c := s.newCustomerLocked(req.Name, req.Email, req.Phone)
	c.LoyaltyPoints = s.settings.WelcomeBonus
	httpx.WriteJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var req loyaltysdk.UpdateCustomerRequest
	if !decode(w, r, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		httpx.WriteValidationError(w, errs)
		return
	}

	id := r.PathValue("id")
	s.mu.Lock()
	defer s.mu.Unlock()

	c, _ := s.findCustomerLocked(func(c *loyaltysdk.Customer) bool { return c.ID == id })
	if c == nil {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Customer not found")
		return
	}
	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.Email != nil {
		c.Email = *req.Email
	}
	if req.Phone != nil {
		c.Phone = *req.Phone
	}
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCustomer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	defer s.mu.Unlock()

	c, i := s.findCustomerLocked(func(c *loyaltysdk.Customer) bool { return c.ID == id })
	if c == nil {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Customer not found")
		return
	}
	s.customers = append(s.customers[:i], s.customers[i+1:]...)
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// Transactions
// ============================================================================

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]loyaltysdk.Transaction, 0, len(s.transactions))
	for _, t := range s.transactions {
		out = append(out, *t)
	}
	s.mu.Unlock()

	httpx.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) findTransactionLocked(id string) *loyaltysdk.Transaction {
	for _, t := range s.transactions {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.findTransactionLocked(r.PathValue("id"))
	if t == nil {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Transaction not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}

// handleCreateTransaction applies a flat points-per-dollar rule. The real
// accrual rules are server-owned; this is only enough to move balances.
func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req loyaltysdk.CreateTransactionRequest
	if !decode(w, r, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		httpx.WriteValidationError(w, errs)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, _ := s.findCustomerLocked(func(c *loyaltysdk.Customer) bool {
		return strings.EqualFold(c.UserCode, req.CustomerCode)
	})
	if c == nil {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "No customer with code "+req.CustomerCode)
		return
	}

	points := int(math.Floor(req.Amount * s.settings.PointsPerDollar))
	if req.Type == loyaltysdk.TransactionRedeem {
		if c.LoyaltyPoints < points {
			httpx.WriteError(w, http.StatusBadRequest, "insufficient_points", "Customer does not have enough points")
			return
		}
		points = -points
	}
	c.LoyaltyPoints += points
	c.Tier = s.tierLocked(c.LoyaltyPoints)

	t := &loyaltysdk.Transaction{
		ID:           idx.New().String(),
		UserID:       c.ID,
		StoreID:      req.StoreID,
		Type:         req.Type,
		Points:       points,
		Amount:       req.Amount,
		Description:  req.Description,
		Date:         time.Now().UTC().Format(time.DateOnly),
		Status:       loyaltysdk.TransactionCompleted,
		CustomerCode: c.UserCode,
	}
	s.transactions = append(s.transactions, t)
	httpx.WriteJSON(w, http.StatusCreated, t)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req loyaltysdk.UpdateTransactionRequest
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.findTransactionLocked(r.PathValue("id"))
	if t == nil {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Transaction not found")
		return
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Status != nil {
		t.Status = *req.Status
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}

func (s *Server) handleCancelTransaction(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.findTransactionLocked(r.PathValue("id"))
	if t == nil {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Transaction not found")
		return
	}
	if t.Status == loyaltysdk.TransactionCancelled {
		httpx.WriteError(w, http.StatusBadRequest, "already_cancelled", "Transaction is already cancelled")
		return
	}

	if c, _ := s.findCustomerLocked(func(c *loyaltysdk.Customer) bool { return c.ID == t.UserID }); c != nil {
		c.LoyaltyPoints -= t.Points
		c.Tier = s.tierLocked(c.LoyaltyPoints)
	}
	t.Status = loyaltysdk.TransactionCancelled
	httpx.WriteJSON(w, http.StatusOK, t)
}

func (s *Server) tierLocked(points int) loyaltysdk.Tier {
	switch {
	case points >= s.settings.TierPlatinumMin:
		return loyaltysdk.TierPlatinum
	case points >= s.settings.TierGoldMin:
		return loyaltysdk.TierGold
	case points >= s.settings.TierSilverMin:
		return loyaltysdk.TierSilver
	}
	return loyaltysdk.TierBronze
}

// ============================================================================
// Stores
// ============================================================================

func (s *Server) findStoreLocked(id string) (*loyaltysdk.Store, int) {
	for i, st := range s.stores {
		if st.ID == id {
			return st, i
		}
	}
	return nil, -1
}

func (s *Server) handleListStores(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]loyaltysdk.Store, 0, len(s.stores))
	for _, st := range s.stores {
		out = append(out, *st)
	}
	s.mu.Unlock()

	httpx.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetStore(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, _ := s.findStoreLocked(r.PathValue("id"))
	if st == nil {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Store not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, st)
}

func (s *Server) handleCreateStore(w http.ResponseWriter, r *http.Request) {
	var req loyaltysdk.StoreRequest
	if !decode(w, r, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		httpx.WriteValidationError(w, errs)
		return
	}

	st := &loyaltysdk.Store{ID: idx.New().String(), IsActive: true}
	applyStore(st, req)

	s.mu.Lock()
	s.stores = append(s.stores, st)
	out := *st
	s.mu.Unlock()

	httpx.WriteJSON(w, http.StatusCreated, out)
}

func (s *Server) handleUpdateStore(w http.ResponseWriter, r *http.Request) {
	var req loyaltysdk.StoreRequest
	if !decode(w, r, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		httpx.WriteValidationError(w, errs)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, _ := s.findStoreLocked(r.PathValue("id"))
	if st == nil {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Store not found")
		return
	}
	applyStore(st, req)
	httpx.WriteJSON(w, http.StatusOK, st)
}

func applyStore(st *loyaltysdk.Store, req loyaltysdk.StoreRequest) {
	st.Name = req.Name
	st.Address = req.Address
	st.City = req.City
	st.State = req.State
	st.ZipCode = req.ZipCode
	st.Phone = req.Phone
	st.Manager = req.Manager
	if req.IsActive != nil {
		st.IsActive = *req.IsActive
	}
}

func (s *Server) handleDeleteStore(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, i := s.findStoreLocked(r.PathValue("id"))
	if st == nil {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Store not found")
		return
	}
	s.stores = append(s.stores[:i], s.stores[i+1:]...)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := loyaltysdk.CustomerLookupParams{
		StoreID:       r.PathValue("id"),
		UserStoreCode: q.Get("userStoreCode"),
		PhoneNumber:   q.Get("phoneNumber"),
		Email:         q.Get("email"),
	}
	if errs := params.Validate(); len(errs) > 0 {
		httpx.WriteValidationError(w, errs)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, _ := s.findStoreLocked(params.StoreID)
	if st == nil {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Store not found")
		return
	}
	c, _ := s.findCustomerLocked(func(c *loyaltysdk.Customer) bool {
		switch {
		case params.UserStoreCode != "":
			return strings.EqualFold(c.UserCode, params.UserStoreCode)
		case params.PhoneNumber != "":
			return c.Phone == params.PhoneNumber
		}
		return strings.EqualFold(c.Email, params.Email)
	})
	if c == nil {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Customer not found")
		return
	}

	var out loyaltysdk.CustomerLookupResponse
	out.Customer.ID = c.ID
	out.Customer.Email = c.Email
	out.Customer.PhoneNumber = c.Phone
	out.Customer.FullName = c.Name
	out.Customer.UserCode = c.UserCode
	out.Customer.EmailVerified = true
	out.Customer.IsActive = c.IsActive
	out.Membership.UserStoreCode = c.UserCode
	out.Membership.PointsBalance = c.LoyaltyPoints
	out.Membership.MemberSince = c.JoinDate
	out.Membership.IsActive = c.IsActive
	out.Membership.Tier = string(c.Tier)
	out.Store.ID = st.ID
	out.Store.Name = st.Name
	out.Store.PointsPerAmount = s.settings.PointsPerDollar
	out.RecentTransactions = []loyaltysdk.LookupTransaction{}

	for _, t := range s.transactions {
		if t.UserID != c.ID {
			continue
		}
		if t.Points > 0 {
			out.Membership.TotalPointsEarned += t.Points
		} else {
			out.Membership.TotalPointsRedeemed -= t.Points
		}
		lt := loyaltysdk.LookupTransaction{
			ID:          t.ID,
			Description: t.Description,
			CreatedAt:   t.Date,
			Type:        "PURCHASE",
		}
		lt.Amount = strconv.FormatFloat(t.Amount, 'f', 2, 64)
		if t.Points > 0 {
			lt.PointsEarned = t.Points
		} else {
			lt.PointsRedeemed = -t.Points
			lt.Type = "REDEEM"
		}
		out.RecentTransactions = append(out.RecentTransactions, lt)
		date := t.Date
		out.Membership.LastTransaction = &date
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// ============================================================================
// Settings & Analytics
// ============================================================================

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := s.settings
	s.mu.Unlock()
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req loyaltysdk.UpdateSettingsRequest
	if !decode(w, r, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		httpx.WriteValidationError(w, errs)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set := &s.settings
	if req.PointsPerDollar != nil {
		set.PointsPerDollar = *req.PointsPerDollar
	}
	if req.MoneyPerPoint != nil {
		set.MoneyPerPoint = *req.MoneyPerPoint
	}
	if req.Rounding != nil {
		set.Rounding = *req.Rounding
	}
	if req.MinPointsToRedeem != nil {
		set.MinPointsToRedeem = *req.MinPointsToRedeem
	}
	if req.PointExpirationMonths != nil {
		set.PointExpirationMonths = *req.PointExpirationMonths
	}
	if req.WelcomeBonus != nil {
		set.WelcomeBonus = *req.WelcomeBonus
	}
	if req.ReferralBonus != nil {
		set.ReferralBonus = *req.ReferralBonus
	}
	httpx.WriteJSON(w, http.StatusOK, *set)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out loyaltysdk.Analytics
	out.TotalUsers = len(s.customers)
	out.TotalTransactions = len(s.transactions)
	total := 0
	for _, c := range s.customers {
		if c.IsActive {
			out.ActiveUsers++
		}
		total += c.LoyaltyPoints
	}
	for _, t := range s.transactions {
		if t.Status == loyaltysdk.TransactionCancelled {
			continue
		}
		if t.Points > 0 {
			out.TotalPointsEarned += t.Points
		} else {
			out.TotalPointsRedeemed -= t.Points
		}
	}
	if out.TotalUsers > 0 {
		out.AveragePointsPerUser = float64(total) / float64(out.TotalUsers)
	}

	top := make([]loyaltysdk.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		top = append(top, *c)
	}
	slices.SortStableFunc(top, func(a, b loyaltysdk.Customer) int {
		return cmp.Compare(b.LoyaltyPoints, a.LoyaltyPoints)
	})
	out.TopSpenders = top[:min(3, len(top))]

	httpx.WriteJSON(w, http.StatusOK, out)
}
