// Package guard gates navigation on session state.
package guard

import (
	"strings"

	"github.com/aussiebroadwan/loyalty/pkg/loyaltysdk"
)

type Decision int

const (
	// Render shows the requested view.
	Render Decision = iota
	// Redirect sends the user to Result.Target instead.
	Redirect
	// Forbidden renders a denial in place; the user lacks a required role.
	Forbidden
	// Wait withholds any decision until the session is known.
	Wait
)

func (d Decision) String() string {
	switch d {
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	case Forbidden:
		return "forbidden"
	case Wait:
		return "wait"
	}
	return "unknown"
}

type Result struct {
	Decision Decision
	Path     string
	Target   string
}

// Rules describes which views need a session and which must not have one.
// Paths match by prefix on segment boundaries.
type Rules struct {
	Protected   []string
	PublicOnly  []string
	LoginPath   string
	LandingPath string

	// RequiredRoles maps a path prefix to the roles allowed to view it
	RequiredRoles map[string][]string
}

func DefaultRules() Rules {
	return Rules{
		Protected:   []string{"/dashboard", "/settings", "/users", "/analytics", "/transactions", "/store"},
		PublicOnly:  []string{"/login", "/signup"},
		LoginPath:   "/login",
		LandingPath: "/dashboard",
		RequiredRoles: map[string][]string{
			"/settings": {"ADMIN"},
		},
	}
}

// Input is everything a decision depends on.
type Input struct {
	Path     string
	User     *loyaltysdk.UserProfile
	Authed   bool
	Checking bool
}

// Evaluate decides what happens when Input.Path is requested.
func (r Rules) Evaluate(in Input) Result {
	res := Result{Decision: Render, Path: in.Path}
	switch {
	case in.Checking:
		res.Decision = Wait
	case !in.Authed && matchAny(in.Path, r.Protected):
		res.Decision, res.Target = Redirect, r.LoginPath
	case in.Authed && matchAny(in.Path, r.PublicOnly):
		res.Decision, res.Target = Redirect, r.LandingPath
	case in.Authed && !r.allowed(in.Path, in.User):
		res.Decision = Forbidden
	}
	return res
}

func (r Rules) allowed(path string, user *loyaltysdk.UserProfile) bool {
	for prefix, roles := range r.RequiredRoles {
		if match(path, prefix) && (user == nil || !user.HasAnyRole(roles...)) {
			return false
		}
	}
	return true
}

func matchAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if match(path, p) {
			return true
		}
	}
	return false
}

func match(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/")
}
