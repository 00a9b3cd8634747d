package loyaltysdk

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

// Validate checks the request and returns a map of field names to error messages.
// Returns an empty map if validation succeeds.
func (r *SendOTPRequest) Validate() map[string]string {
	errs := make(map[string]string)
	validateEmail(errs, "email", r.Email, true)
	return errs
}

func (r *VerifyOTPRequest) Validate() map[string]string {
	errs := make(map[string]string)
	validateEmail(errs, "email", r.Email, true)
	if strings.TrimSpace(r.OTPCode) == "" {
		errs["otpCode"] = "OTP code is required"
	}
	return errs
}

func (r *LoginRequest) Validate() map[string]string {
	errs := make(map[string]string)
	if r.IDToken == "" {
		errs["idToken"] = "ID token is required"
	}
	if r.Method != LoginMethodGoogle && r.Method != LoginMethodPhone {
		errs["method"] = "method must be google or phone"
	}
	return errs
}

func (r *CreateCustomerRequest) Validate() map[string]string {
	errs := make(map[string]string)
	if strings.TrimSpace(r.Name) == "" {
		errs["name"] = "Name is required"
	}
	validateEmail(errs, "email", r.Email, true)
	return errs
}

func (r *UpdateCustomerRequest) Validate() map[string]string {
	errs := make(map[string]string)
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		errs["name"] = "Name must not be empty"
	}
	if r.Email != nil {
		validateEmail(errs, "email", *r.Email, true)
	}
	return errs
}

func (r *CreateTransactionRequest) Validate() map[string]string {
	errs := make(map[string]string)

	code := strings.TrimSpace(r.CustomerCode)
	switch n := utf8.RuneCountInString(code); {
	case n == 0:
		errs["customerCode"] = "Customer code is required"
	case n < 4:
		errs["customerCode"] = "Customer code must be at least 4 characters"
	case n > 50:
		errs["customerCode"] = "Customer code must be less than 50 characters"
	}

	if r.Type != TransactionEarn && r.Type != TransactionRedeem {
		errs["type"] = "Invalid transaction type"
	}
	if r.Amount <= 0 {
		errs["amount"] = "Amount must be a positive number"
	}

	switch n := utf8.RuneCountInString(strings.TrimSpace(r.Description)); {
	case n == 0:
		errs["description"] = "Description is required"
	case n > 250:
		errs["description"] = "Description must be less than 250 characters"
	}

	if utf8.RuneCountInString(r.ExternalTransactionID) > 100 {
		errs["externalTransactionId"] = "External transaction ID must be less than 100 characters"
	}
	return errs
}

func (r *StoreRequest) Validate() map[string]string {
	errs := make(map[string]string)

	switch n := utf8.RuneCountInString(strings.TrimSpace(r.Name)); {
	case n == 0:
		errs["name"] = "Store name is required"
	case n < 2:
		errs["name"] = "Store name must be at least 2 characters"
	case n > 100:
		errs["name"] = "Store name must be less than 100 characters"
	}

	switch n := utf8.RuneCountInString(strings.TrimSpace(r.Address)); {
	case n == 0:
		errs["address"] = "Store address is required"
	case n < 10:
		errs["address"] = "Address must be at least 10 characters"
	case n > 200:
		errs["address"] = "Address must be less than 200 characters"
	}
	return errs
}

func (r *UpdateSettingsRequest) Validate() map[string]string {
	errs := make(map[string]string)
	if r.MoneyPerPoint != nil {
		switch v := *r.MoneyPerPoint; {
		case v < 0.01:
			errs["moneyPerPoint"] = "Minimum value is 0.01"
		case v > 1000:
			errs["moneyPerPoint"] = "Maximum value is 1000"
		}
	}
	if r.PointsPerDollar != nil && *r.PointsPerDollar <= 0 {
		errs["pointsPerDollar"] = "Points per dollar must be a positive number"
	}
	if r.MinPointsToRedeem != nil && *r.MinPointsToRedeem < 0 {
		errs["minPointsToRedeem"] = "Minimum points to redeem must not be negative"
	}
	return errs
}

func (p *CustomerLookupParams) Validate() map[string]string {
	errs := make(map[string]string)
	if strings.TrimSpace(p.StoreID) == "" {
		errs["storeId"] = "Store ID is required"
	}

	set := 0
	for _, v := range []string{p.UserStoreCode, p.PhoneNumber, p.Email} {
		if strings.TrimSpace(v) != "" {
			set++
		}
	}
	switch set {
	case 0:
		errs["identifier"] = "One of userStoreCode, phoneNumber or email is required"
	case 1:
		if p.Email != "" {
			validateEmail(errs, "email", p.Email, true)
		}
	default:
		errs["identifier"] = "Only one of userStoreCode, phoneNumber or email may be given"
	}
	return errs
}

func validateEmail(errs map[string]string, field, value string, required bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		if required {
			errs[field] = "Email is required"
		}
		return
	}
	if _, err := mail.ParseAddress(value); err != nil {
		errs[field] = "Email is invalid"
	}
}

func validate(v interface{ Validate() map[string]string }) error {
	if errs := v.Validate(); len(errs) > 0 {
		return ValidationError(errs)
	}
	return nil
}
