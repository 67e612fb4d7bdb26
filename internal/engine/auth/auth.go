// Package auth defines the permissions guarding the API.
package auth

import (
	"fmt"
	"strings"
)

// Permissions.
const (
	DemoRead     = "demo.read"
	DemoGenerate = "demo.generate"
	DemoCleanup  = "demo.cleanup"
	LogsRead     = "logs.read"
	LogsManage   = "logs.manage"
	Admin        = "*"
)

// All lists every concrete permission.
var All = []string{DemoRead, DemoGenerate, DemoCleanup, LogsRead, LogsManage}

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Allowed reports whether granted covers perm. "*" grants everything and
// "demo.*" grants every demo permission.
func Allowed(granted []string, perm string) bool {
	for _, g := range granted {
		if g == perm || g == Admin {
			return true
		}
		if prefix, ok := strings.CutSuffix(g, ".*"); ok && strings.HasPrefix(perm, prefix+".") {
			return true
		}
	}
	return false
}

// Check returns a ForbiddenError unless granted covers perm.
func Check(granted []string, perm string) error {
	if Allowed(granted, perm) {
		return nil
	}
	return ForbiddenError{Permission: perm}
}

// Validate rejects unknown permission names.
func Validate(perms []string) error {
	for _, p := range perms {
		if p == Admin {
			continue
		}
		if prefix, ok := strings.CutSuffix(p, ".*"); ok && (prefix == "demo" || prefix == "logs") {
			continue
		}
		known := false
		for _, k := range All {
			if k == p {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("unknown permission %q", p)
		}
	}
	return nil
}
