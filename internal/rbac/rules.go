package rbac

// Simple default policy. Expand as needed. Course-level authorization
// (enrollment, faculty association) is checked again inside the quiz
// service via roster capabilities; this layer only gates the HTTP surface
// by role.
var RolePermissions = map[string][]string{
	"student": {
		"quiz:view",
		"attempt:start",
		"attempt:answer",
		"attempt:complete",
		"attempt:view-own",
	},
	"faculty": {
		"quiz:create",
		"quiz:publish",
		"quiz:view",
		"attempt:view-all",
		"attempt:grade",
	},
	"admin": {
		"*", // everything
	},
}
